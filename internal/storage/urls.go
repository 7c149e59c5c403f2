package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-dashboard/internal/obs"
)

// ErrInvalidObjectKey es un nombre de archivo u owner invalido; es error del llamador.
var ErrInvalidObjectKey = errors.New("invalid object key")

// CredentialMinter obtiene credenciales temporales por objeto. TempCredentialsClient lo implementa.
type CredentialMinter interface {
	Mint(ctx context.Context, in TempCredentialsRequest) (Credentials, error)
}

type PresignedURL struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// URLService arma URLs firmadas para el bucket configurado. Con minter, cada URL se firma
// con credenciales temporales limitadas al objeto en lugar de las credenciales de cuenta.
type URLService struct {
	logger    *zap.Logger
	presigner *Presigner
	bucket    string
	static    Credentials
	minter    CredentialMinter
	now       func() time.Time
}

func NewURLService(logger *zap.Logger, presigner *Presigner, bucket string, static Credentials, minter CredentialMinter) *URLService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLService{
		logger:    logger,
		presigner: presigner,
		bucket:    strings.TrimSpace(bucket),
		static:    static,
		minter:    minter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *URLService) UploadURL(ctx context.Context, key string, expires time.Duration) (PresignedURL, error) {
	return s.Presign(ctx, "PUT", key, expires)
}

func (s *URLService) DownloadURL(ctx context.Context, key string, expires time.Duration) (PresignedURL, error) {
	return s.Presign(ctx, "GET", key, expires)
}

func (s *URLService) DeleteURL(ctx context.Context, key string, expires time.Duration) (PresignedURL, error) {
	return s.Presign(ctx, "DELETE", key, expires)
}

func (s *URLService) HeadURL(ctx context.Context, key string, expires time.Duration) (PresignedURL, error) {
	return s.Presign(ctx, "HEAD", key, expires)
}

// Presign firma method sobre key. expires <= 0 usa 20 minutos para PUT y 15 para el resto.
func (s *URLService) Presign(ctx context.Context, method, key string, expires time.Duration) (PresignedURL, error) {
	if s.presigner == nil {
		return PresignedURL{}, fmt.Errorf("%w: storage not configured", ErrSigning)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if expires <= 0 {
		expires = DefaultReadExpiry
		if method == "PUT" {
			expires = DefaultUploadExpiry
		}
	}

	creds := s.static
	if s.minter != nil {
		permission := PermissionObjectReadOnly
		if method == "PUT" || method == "DELETE" {
			permission = PermissionObjectReadWrite
		}
		minted, err := s.minter.Mint(ctx, TempCredentialsRequest{
			Bucket:     s.bucket,
			Key:        key,
			Permission: permission,
			TTL:        expires,
		})
		if err != nil {
			s.logger.Warn("mint temp credentials failed", zap.String("key", key), zap.Error(err))
			return PresignedURL{}, err
		}
		creds = minted
	}

	now := s.now()
	signed, err := s.presigner.Presign(PresignInput{
		Method:      method,
		Bucket:      s.bucket,
		Key:         key,
		Expires:     expires,
		Credentials: creds,
		Now:         now,
	})
	if err != nil {
		return PresignedURL{}, err
	}
	obs.PresignedURL(method)
	return PresignedURL{
		URL:       signed,
		Method:    method,
		Bucket:    s.bucket,
		Key:       strings.TrimLeft(key, "/"),
		ExpiresAt: now.Add(expires),
	}, nil
}

// BotFileKey arma "org/<org>/bots/<bot>/<archivo>" usando solo el nombre base del archivo.
func BotFileKey(organizationID, botID, fileName string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: invalid file name", ErrInvalidObjectKey)
	}
	organizationID = strings.TrimSpace(organizationID)
	botID = strings.TrimSpace(botID)
	if organizationID == "" || botID == "" {
		return "", fmt.Errorf("%w: organization and bot are required", ErrInvalidObjectKey)
	}
	return "org/" + organizationID + "/bots/" + botID + "/" + name, nil
}
