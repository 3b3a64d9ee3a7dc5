// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// リクエストIDの付与と外部呼び出しへの伝播、アクセスログ、
// パニックリカバリを含む。ログはすべてzapで出力する。
package middleware
