package provider

import (
	"context"
	"os"
	"strings"
)

// EnvCredentialStore は環境変数から資格情報を解決するCredentialStore実装。
// 変数名は SCRAPE_CREDENTIAL_<プロバイダ名> の形式。
// 単一運用者向けの実装のため、userIDは検索キーに含めない。
type EnvCredentialStore struct {
	lookup func(string) (string, bool)
}

// NewEnvCredentialStore はEnvCredentialStoreの新しいインスタンスを生成する。
func NewEnvCredentialStore() *EnvCredentialStore {
	return &EnvCredentialStore{lookup: os.LookupEnv}
}

// GetCredential は環境変数から資格情報を検索する。
// 設定されていない場合は (nil, nil) を返す。
func (s *EnvCredentialStore) GetCredential(_ context.Context, _ string, providerName string) (*Credential, error) {
	key := "SCRAPE_CREDENTIAL_" + strings.ToUpper(providerName)
	value, ok := s.lookup(key)
	if !ok || value == "" {
		return nil, nil
	}
	return &Credential{Provider: providerName, Value: value}, nil
}
