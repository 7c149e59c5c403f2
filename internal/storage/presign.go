package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	sigV4Algorithm  = "AWS4-HMAC-SHA256"
	sigV4Region     = "auto"
	sigV4Service    = "s3"
	sigV4Terminator = "aws4_request"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	amzDateFormat   = "20060102T150405Z"
	scopeDateFormat = "20060102"

	DefaultUploadExpiry = 20 * time.Minute
	DefaultReadExpiry   = 15 * time.Minute
	MaxExpiry           = 7 * 24 * time.Hour
)

// ErrSigning indica que no se pudo construir una URL firmada. Nunca se devuelve una URL parcial.
var ErrSigning = errors.New("presign failed")

// Credentials son estaticas o temporales (con SessionToken).
type Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken,omitempty"`
}

func (c Credentials) valid() bool {
	return strings.TrimSpace(c.AccessKeyID) != "" && strings.TrimSpace(c.SecretAccessKey) != ""
}

type PresignInput struct {
	Method      string
	Bucket      string
	Key         string
	Expires     time.Duration
	Credentials Credentials
	// Now fija el instante de firma; cero usa el reloj.
	Now time.Time
}

// Presigner firma URLs SigV4 por query string contra un endpoint S3 compatible, estilo path.
type Presigner struct {
	scheme string
	host   string
	now    func() time.Time
}

// NewPresigner acepta "https://host" o solo "host".
func NewPresigner(endpoint string) (*Presigner, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrSigning)
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid endpoint %q", ErrSigning, endpoint)
	}
	return &Presigner{
		scheme: u.Scheme,
		host:   u.Host,
		now:    time.Now,
	}, nil
}

func (p *Presigner) Host() string {
	return p.host
}

// Presign devuelve la URL firmada para exactamente metodo, ruta, query y ventana de expiracion.
func (p *Presigner) Presign(in PresignInput) (string, error) {
	signed, _, err := p.sign(in)
	return signed, err
}

func (p *Presigner) sign(in PresignInput) (string, string, error) {
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if !allowedMethod(method) {
		return "", "", fmt.Errorf("%w: unsupported method %q", ErrSigning, in.Method)
	}
	if !in.Credentials.valid() {
		return "", "", fmt.Errorf("%w: missing credentials", ErrSigning)
	}
	bucket := strings.TrimSpace(in.Bucket)
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", "", fmt.Errorf("%w: invalid bucket", ErrSigning)
	}
	key := strings.TrimLeft(in.Key, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: empty key", ErrSigning)
	}
	if in.Expires < time.Second || in.Expires > MaxExpiry {
		return "", "", fmt.Errorf("%w: expiry must be between 1s and 7d", ErrSigning)
	}

	now := in.Now
	if now.IsZero() {
		now = p.now()
	}
	now = now.UTC()
	amzDate := now.Format(amzDateFormat)
	scopeDate := now.Format(scopeDateFormat)
	scope := scopeDate + "/" + sigV4Region + "/" + sigV4Service + "/" + sigV4Terminator

	canonicalURI := "/" + bucket + "/" + encodeKey(key)

	params := map[string]string{
		"X-Amz-Algorithm":     sigV4Algorithm,
		"X-Amz-Credential":    in.Credentials.AccessKeyID + "/" + scope,
		"X-Amz-Date":          amzDate,
		"X-Amz-Expires":       strconv.FormatInt(int64(in.Expires/time.Second), 10),
		"X-Amz-SignedHeaders": "host",
	}
	if token := strings.TrimSpace(in.Credentials.SessionToken); token != "" {
		params["X-Amz-Security-Token"] = token
	}
	canonicalQuery := canonicalQueryString(params)

	canonicalRequest := strings.Join([]string{
		method,
		canonicalURI,
		canonicalQuery,
		"host:" + p.host + "\n",
		"host",
		unsignedPayload,
	}, "\n")

	stringToSign := strings.Join([]string{
		sigV4Algorithm,
		amzDate,
		scope,
		hexSHA256(canonicalRequest),
	}, "\n")

	signingKey := deriveSigningKey(in.Credentials.SecretAccessKey, scopeDate, sigV4Region, sigV4Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	signed := p.scheme + "://" + p.host + canonicalURI + "?" + canonicalQuery + "&X-Amz-Signature=" + signature
	return signed, canonicalRequest, nil
}

func allowedMethod(m string) bool {
	switch m {
	case "GET", "PUT", "DELETE", "HEAD":
		return true
	}
	return false
}

// deriveSigningKey encadena HMAC-SHA256: "AWS4"+secret -> fecha -> region -> servicio -> aws4_request.
func deriveSigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, sigV4Terminator)
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hexSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func canonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, uriEncode(k)+"="+uriEncode(params[k]))
	}
	return strings.Join(parts, "&")
}

// encodeKey codifica cada segmento por separado y conserva los "/".
func encodeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = uriEncode(s)
	}
	return strings.Join(segments, "/")
}

// uriEncode aplica RFC 3986: solo A-Z a-z 0-9 - . _ ~ quedan sin escapar, hex en mayusculas.
func uriEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
