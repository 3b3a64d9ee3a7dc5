// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// シークレットストアへのログインとシークレット読み取り、IDプロバイダでの
// トークン交換など、外部呼び出しのパターンを統一する。
// 接続先ごとにTLSの最小バージョン、証明書検証、クライアント証明書を設定できる。
package httpclient
