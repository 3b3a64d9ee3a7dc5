// Package exchanger はシークレットストアとIDプロバイダに対する信頼の委譲を実装する。
//
// 呼び出し元の身元トークン（サービスアカウントのJWT）でシークレットストアに
// ログインしてクライアントトークンを取得し、そのトークンでシークレットを読み取る。
// トークン交換では、読み取ったシークレットのapi_keyをIDプロバイダに提示して
// アクセストークンを取得する。シークレットストアとIDプロバイダは独立に管理された
// 信頼ドメインであり、それぞれ別のTLS設定のクライアントで通信する。
//
// ログインの結果やアクセストークンはキャッシュしない。リクエストごとに
// すべての呼び出しを逐次実行し、失敗時にリトライはしない。
package exchanger
