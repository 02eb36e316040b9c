// Package session は匿名セッションとオーナートークンの管理を提供します。
// ログインは行わず、初回アクセス時にトークンを発行してCookieセッションに
// 保存します。ジョブの所有者判定はこのトークンで行います。
package session

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CookieName はセッションCookieの名前です。
	CookieName = "pm_session"

	sessionKeyToken    = "owner_token"
	sessionKeyIssuedAt = "issued_at"
)

var maxSessionLifetime = 24 * time.Hour

// MaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func MaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// Middleware はCookieベースのセッションミドルウェアを返します。
// release モードでは Secure 属性を付与します。
func Middleware(secret string, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   MaxAgeSeconds(),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return sessions.Sessions(CookieName, store)
}

// OwnerToken は呼び出し元のオーナートークンを返します。
// 未発行の場合は新しいトークンを発行してセッションに保存します。
// セッションの保存に失敗した場合は空文字を返し、呼び出し側は匿名として
// 扱います。
func OwnerToken(c *gin.Context) string {
	sess := sessions.Default(c)
	if token, ok := sess.Get(sessionKeyToken).(string); ok && token != "" {
		return token
	}

	token := uuid.NewString()
	sess.Set(sessionKeyToken, token)
	sess.Set(sessionKeyIssuedAt, time.Now().Unix())
	if err := sess.Save(); err != nil {
		return ""
	}
	return token
}

// IssueHandler は POST /api/auth/session のハンドラーです。
// セッションを明示的に確立し、有効期限とトークンを返します。
func IssueHandler(c *gin.Context) {
	token := OwnerToken(c)
	if token == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました。",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": token,
		"expiresAt": time.Now().Add(maxSessionLifetime).UTC().Format(time.RFC3339),
	})
}
