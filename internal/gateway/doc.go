// Package gateway はsecret-providerのHTTPサーバーを提供する。
//
// /get-secret はシークレットストアから読み取ったシークレットをJSONで返し、
// /get-iam-token はシークレットに格納されたAPIキーをIDプロバイダの
// アクセストークンと交換して返す。外部呼び出しの失敗の詳細はサーバー側の
// ログにのみ出力し、呼び出し元にはボディなしの400または401だけを返す。
package gateway
