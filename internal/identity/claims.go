package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はサービスアカウントトークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	// Kubernetes はKubernetesが発行したトークンに含まれる拡張クレーム。
	Kubernetes *KubernetesClaims `json:"kubernetes.io,omitempty"`
}

// KubernetesClaims はサービスアカウントの所属情報。
type KubernetesClaims struct {
	Namespace      string `json:"namespace"`
	ServiceAccount struct {
		Name string `json:"name"`
		UID  string `json:"uid"`
	} `json:"serviceaccount"`
}

// PeekClaims は署名を検証せずにトークンのクレームを取り出す。
// 戻り値は認可の判断に使用してはならない。
func PeekClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("身元トークンのパースに失敗: %w", err)
	}
	return claims, nil
}

// Subject はトークンのサブジェクトを返す。
// subクレームが無い場合はnamespaceとサービスアカウント名から組み立てる。
// パースできない場合は空文字列を返す。
func Subject(token string) string {
	claims, err := PeekClaims(token)
	if err != nil {
		return ""
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	if k := claims.Kubernetes; k != nil && k.ServiceAccount.Name != "" {
		return fmt.Sprintf("system:serviceaccount:%s:%s", k.Namespace, k.ServiceAccount.Name)
	}
	return ""
}
