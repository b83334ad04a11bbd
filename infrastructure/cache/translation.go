package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"dubbing-service/domain/translation"
)

const defaultCacheSize = 512

// TranslationCache decorates a translation.Translator with an LRU of successful results
type TranslationCache struct {
	delegate translation.Translator
	cache    *lru.Cache[string, translation.Result]
}

// NewTranslationCache wraps delegate; size <= 0 uses the default size
func NewTranslationCache(delegate translation.Translator, size int) (*TranslationCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, translation.Result](size)
	if err != nil {
		return nil, err
	}
	return &TranslationCache{delegate: delegate, cache: c}, nil
}

func cacheKey(req translation.Request) string {
	h := sha256.New()
	h.Write([]byte(req.SourceLanguage))
	h.Write([]byte{0})
	h.Write([]byte(req.TargetLanguage))
	h.Write([]byte{0})
	h.Write([]byte(req.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// Translate implements translation.Translator; failures are never cached
func (c *TranslationCache) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	key := cacheKey(req)
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}

	res, err := c.delegate.Translate(ctx, req)
	if err != nil {
		return res, err
	}
	c.cache.Add(key, res)
	return res, nil
}

// Len returns the number of cached translations
func (c *TranslationCache) Len() int {
	return c.cache.Len()
}

// Ensure TranslationCache implements translation.Translator
var _ translation.Translator = (*TranslationCache)(nil)
