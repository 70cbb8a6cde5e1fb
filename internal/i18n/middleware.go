package i18n

import (
	"context"

	"github.com/gin-gonic/gin"
)

type langKey struct{}

// LanguageMiddleware stores the request's language in its context. A valid
// ?lang= query parameter wins over Accept-Language.
func LanguageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := detectLanguage(c)
		ctx := context.WithValue(c.Request.Context(), langKey{}, lang)
		c.Request = c.Request.WithContext(ctx)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

func detectLanguage(c *gin.Context) string {
	if lang := c.Query("lang"); lang != "" {
		if _, ok := catalogs[lang]; ok {
			return lang
		}
	}
	if accept := c.GetHeader("Accept-Language"); accept != "" {
		return Match(accept)
	}
	return DefaultLang
}

func GetLanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok {
		return lang
	}
	return DefaultLang
}

func FromContext(ctx context.Context) *Localizer {
	return New(GetLanguageFromContext(ctx))
}

func TFromContext(ctx context.Context, key string) string {
	return FromContext(ctx).T(key)
}

func TWithDataFromContext(ctx context.Context, key string, data map[string]string) string {
	return FromContext(ctx).TWithData(key, data)
}
