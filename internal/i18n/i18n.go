// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n localises API messages and emails. English is the default,
// Filipino the second locale.
package i18n

import (
	"context"
	"embed"
	"io/fs"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// Filipino is the second supported locale.
var Filipino = language.MustParse("fil")

// Supported lists the locales in preference order. The first is the
// fallback.
var Supported = []language.Tag{language.English, Filipino}

var matcher = language.NewMatcher(Supported)

var loadBundle = sync.OnceValues(func() (*i18n.Bundle, error) {
	b := i18n.NewBundle(Supported[0])
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translations/active.*.toml")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
			return nil, err
		}
	}
	return b, nil
})

// Init loads the embedded translations. It is safe to call more than once.
func Init() error {
	_, err := loadBundle()
	return err
}

type locale struct {
	tag       language.Tag
	localizer *i18n.Localizer
}

type localeKey struct{}

func newLocale(tag language.Tag) locale {
	b, err := loadBundle()
	if err != nil {
		b = i18n.NewBundle(Supported[0])
	}
	return locale{tag: tag, localizer: i18n.NewLocalizer(b, tag.String())}
}

// WithLocale stores the locale used by T and TData in ctx.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, newLocale(tag))
}

func fromContext(ctx context.Context) locale {
	if l, ok := ctx.Value(localeKey{}).(locale); ok {
		return l
	}
	return newLocale(Supported[0])
}

// GetLocale returns the locale code stored in ctx, "en" when none is.
func GetLocale(ctx context.Context) string {
	return fromContext(ctx).tag.String()
}

// T translates a message by ID. Unknown IDs are returned unchanged.
func T(ctx context.Context, messageID string) string {
	return TData(ctx, messageID, nil)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	msg, err := fromContext(ctx).localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// MatchLanguage picks the best supported locale for an Accept-Language
// header.
func MatchLanguage(acceptLanguage string) language.Tag {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	return Supported[idx]
}
