package pipeline

import (
	"golang.org/x/text/language"

	"poster/internal/domain"
)

type message struct {
	text       string
	suggestion string
}

var (
	supportedLocales = []language.Tag{language.English, language.Indonesian}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

var catalog = map[language.Base]map[domain.ErrorKind]message{
	base(language.English): {
		domain.KindValidation: {
			text:       "Please upload a valid image.",
			suggestion: "Use a JPEG, PNG, GIF or WebP photo.",
		},
		domain.KindNetwork: {
			text:       "We could not reach the image service.",
			suggestion: "Check your connection and try again.",
		},
		domain.KindMemoryExhausted: {
			text:       "The image service is busy right now.",
			suggestion: "Try again in a few minutes or use a smaller image.",
		},
		domain.KindTimeout: {
			text:       "Processing took too long.",
			suggestion: "Try again with a smaller image.",
		},
		domain.KindMalformedOutput: {
			text:       "The image service returned an unexpected result.",
			suggestion: "Try again.",
		},
		domain.KindFailed: {
			text:       "Failed to process image.",
			suggestion: "Try a different photo.",
		},
	},
	base(language.Indonesian): {
		domain.KindValidation: {
			text:       "Silakan unggah gambar yang valid.",
			suggestion: "Gunakan foto JPEG, PNG, GIF, atau WebP.",
		},
		domain.KindNetwork: {
			text:       "Layanan gambar tidak dapat dihubungi.",
			suggestion: "Periksa koneksi Anda lalu coba lagi.",
		},
		domain.KindMemoryExhausted: {
			text:       "Layanan gambar sedang sibuk.",
			suggestion: "Coba lagi beberapa menit lagi atau gunakan gambar yang lebih kecil.",
		},
		domain.KindTimeout: {
			text:       "Pemrosesan memakan waktu terlalu lama.",
			suggestion: "Coba lagi dengan gambar yang lebih kecil.",
		},
		domain.KindMalformedOutput: {
			text:       "Layanan gambar mengembalikan hasil yang tidak terduga.",
			suggestion: "Silakan coba lagi.",
		},
		domain.KindFailed: {
			text:       "Gagal memproses gambar.",
			suggestion: "Coba foto lain.",
		},
	},
}

func base(tag language.Tag) language.Base {
	b, _ := tag.Base()
	return b
}

// MatchLocale maps a free-form locale (header value, "id-ID", "en") onto a
// supported language.
func MatchLocale(locale string) language.Tag {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	return tag
}

// NewUserError wraps err with text localised for locale.
func NewUserError(locale string, kind domain.ErrorKind, err error) *domain.UserError {
	msgs, ok := catalog[base(MatchLocale(locale))]
	if !ok {
		msgs = catalog[base(language.English)]
	}
	msg, ok := msgs[kind]
	if !ok {
		kind = domain.KindFailed
		msg = msgs[domain.KindFailed]
	}
	return &domain.UserError{Kind: kind, Message: msg.text, Suggestion: msg.suggestion, Err: err}
}
