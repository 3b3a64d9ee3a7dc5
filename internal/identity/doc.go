// Package identity は呼び出し元の身元トークン（サービスアカウントのJWT）を解決する。
//
// リクエストにトークンが指定されていない場合は、設定されたファイルから
// リクエストごとに読み込む。トークンの署名は検証しない。検証はシークレットストアが
// ログイン時に行うため、ここではログや監査記録に付与するサブジェクトを取り出すだけに留める。
package identity
