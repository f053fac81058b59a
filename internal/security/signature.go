package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Headers carried by server-to-server relay calls.
const (
	HeaderSignature = "X-Relay-Signature"
	HeaderDate      = "X-Relay-Date"
	HeaderNonce     = "X-Relay-Nonce"
	HeaderClientID  = "X-Relay-Client"
)

func ComputeBodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func ComputeSignature(secret string, clientID string, method string, path string, query string, bodyHash string, date string, nonce string) string {
	data := strings.Join([]string{
		clientID,
		strings.ToUpper(method),
		path,
		query,
		bodyHash,
		date,
		nonce,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func ValidateSignature(secret string, clientID string, signature string, method string, path string, query string, body []byte, date string, nonce string) bool {
	bodyHash := ComputeBodyHash(body)
	expected := ComputeSignature(secret, clientID, method, path, query, bodyHash, date, nonce)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignRequest sets the relay headers on an outgoing request.
func SignRequest(req *http.Request, secret string, clientID string, body []byte, date string, nonce string) {
	path, query := CanonicalPath(req)
	req.Header.Set(HeaderClientID, clientID)
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, ComputeSignature(secret, clientID, req.Method, path, query, ComputeBodyHash(body), date, nonce))
}

func ExtractSignatureHeaders(c *gin.Context) (clientID string, date string, nonce string, signature string, err error) {
	clientID = c.GetHeader(HeaderClientID)
	date = c.GetHeader(HeaderDate)
	nonce = c.GetHeader(HeaderNonce)
	signature = c.GetHeader(HeaderSignature)

	if clientID == "" || date == "" || nonce == "" || signature == "" {
		return "", "", "", "", fmt.Errorf("missing signature headers")
	}
	return clientID, date, nonce, signature, nil
}

func CanonicalPath(r *http.Request) (string, string) {
	return r.URL.Path, r.URL.RawQuery
}
