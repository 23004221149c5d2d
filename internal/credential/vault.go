package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"lifesync/internal/models"
	"lifesync/internal/repository"
)

const (
	AuthOAuth2 = "oauth2"
	AuthAPIKey = "api_key"
	AuthBasic  = "basic"
	AuthOAuth1 = "oauth1"
)

// Secret is a decrypted credential set.
type Secret struct {
	Service     string
	AuthType    string
	Credentials map[string]any
	ExpiresAt   *time.Time
	UpdatedAt   time.Time
}

func (s *Secret) String(key string) string {
	if s == nil || s.Credentials == nil {
		return ""
	}
	switch v := s.Credentials[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// SecretInfo is the metadata exposed by List; it never carries credential values.
type SecretInfo struct {
	Service   string     `json:"service"`
	AuthType  string     `json:"auth_type"`
	Keys      []string   `json:"keys"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Vault is the secret store on top of the credential_sets table.
type Vault struct {
	repo   repository.CredentialRepository
	sealer *Sealer
	logger *zap.Logger
}

func NewVault(repo repository.CredentialRepository, sealer *Sealer, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{repo: repo, sealer: sealer, logger: logger}
}

// Encrypted reports whether payloads are sealed with a primary key.
func (v *Vault) Encrypted() bool {
	return v != nil && v.sealer.Enabled()
}

// Get returns nil, nil when the service has no stored credentials.
func (v *Vault) Get(ctx context.Context, service string) (*Secret, error) {
	if v == nil || v.repo == nil {
		return nil, nil
	}
	row, err := v.repo.GetCredentialSet(ctx, service)
	if err != nil || row == nil {
		return nil, err
	}
	secret, stale, err := v.decode(row)
	if err != nil {
		return nil, err
	}
	if stale {
		if err := v.write(ctx, secret); err != nil {
			v.logger.Warn("credential re-encrypt failed", zap.String("service", service), zap.Error(err))
		}
	}
	return secret, nil
}

// Save replaces the stored credentials of secret.Service.
func (v *Vault) Save(ctx context.Context, secret *Secret) error {
	if v == nil || v.repo == nil || secret == nil {
		return nil
	}
	secret.Service = strings.TrimSpace(secret.Service)
	if secret.Service == "" {
		return fmt.Errorf("credential service is empty")
	}
	clean := map[string]any{}
	deepMerge(clean, secret.Credentials)
	secret.Credentials = clean
	return v.write(ctx, secret)
}

// Update deep-merges partial into the stored credentials. Keys starting with
// "_" are ignored. A nil expiresAt keeps the stored expiry.
func (v *Vault) Update(ctx context.Context, service string, partial map[string]any, expiresAt *time.Time) error {
	if v == nil || v.repo == nil {
		return nil
	}
	current, err := v.Get(ctx, service)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("no credentials stored for %s", service)
	}
	if current.Credentials == nil {
		current.Credentials = map[string]any{}
	}
	deepMerge(current.Credentials, partial)
	if expiresAt != nil {
		exp := expiresAt.UTC()
		current.ExpiresAt = &exp
	}
	return v.write(ctx, current)
}

func (v *Vault) Delete(ctx context.Context, service string) (bool, error) {
	if v == nil || v.repo == nil {
		return false, nil
	}
	return v.repo.DeleteCredentialSet(ctx, service)
}

func (v *Vault) List(ctx context.Context) ([]SecretInfo, error) {
	if v == nil || v.repo == nil {
		return nil, nil
	}
	rows, err := v.repo.ListCredentialSets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SecretInfo, 0, len(rows))
	for i := range rows {
		info := SecretInfo{
			Service:   rows[i].Service,
			AuthType:  rows[i].AuthType,
			ExpiresAt: rows[i].ExpiresAt,
			UpdatedAt: rows[i].UpdatedAt,
		}
		if secret, _, err := v.decode(&rows[i]); err == nil {
			info.Keys = sortedKeys(secret.Credentials)
		} else {
			v.logger.Warn("credential decode failed", zap.String("service", rows[i].Service), zap.Error(err))
		}
		out = append(out, info)
	}
	return out, nil
}

func (v *Vault) decode(row *models.CredentialSet) (*Secret, bool, error) {
	plain, stale, err := v.sealer.Open(row.Service, row.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", row.Service, err)
	}
	creds := map[string]any{}
	if len(plain) > 0 {
		if err := json.Unmarshal(plain, &creds); err != nil {
			return nil, false, fmt.Errorf("%s: decode credentials: %w", row.Service, err)
		}
	}
	return &Secret{
		Service:     row.Service,
		AuthType:    row.AuthType,
		Credentials: creds,
		ExpiresAt:   row.ExpiresAt,
		UpdatedAt:   row.UpdatedAt,
	}, stale, nil
}

func (v *Vault) write(ctx context.Context, secret *Secret) error {
	plain, err := json.Marshal(secret.Credentials)
	if err != nil {
		return err
	}
	payload, err := v.sealer.Seal(secret.Service, plain)
	if err != nil {
		return err
	}
	authType := strings.TrimSpace(secret.AuthType)
	if authType == "" {
		authType = AuthAPIKey
	}
	return v.repo.SaveCredentialSet(ctx, &models.CredentialSet{
		Service:   secret.Service,
		AuthType:  authType,
		Payload:   datatypes.JSON(payload),
		ExpiresAt: secret.ExpiresAt,
		UpdatedAt: time.Now().UTC(),
	})
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			existing, ok := dst[k].(map[string]any)
			if !ok {
				existing = map[string]any{}
			}
			deepMerge(existing, sub)
			dst[k] = existing
			continue
		}
		dst[k] = v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
