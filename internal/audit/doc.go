// Package audit はシークレットへのアクセスを監査ログとしてSQLiteに記録する。
//
// 記録するのは誰が、いつ、どのシークレットを、どのロールで要求し、
// どのような結果になったかだけで、トークンやシークレットの値は保存しない。
// 監査ログの記録に失敗してもリクエストは失敗させない。
package audit
