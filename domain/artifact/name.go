package artifact

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxNameLength bounds artifact names
const MaxNameLength = 200

// ErrInvalidName is returned for names that fall outside the flat namespace
var ErrInvalidName = errors.New("invalid artifact name")

var (
	nameRe      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	stemCleanRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	sessionRe   = regexp.MustCompile(`^([0-9a-f]{32})_`)
	languageRe  = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
)

// ValidateName checks that name is a single flat path element
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLength {
		return fmt.Errorf("%w: length %d", ErrInvalidName, len(name))
	}
	if !nameRe.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidLanguage reports whether code looks like a BCP-47 style language code.
// Underscore separators are accepted and normalized by NormalizeLanguage.
func ValidLanguage(code string) bool {
	return languageRe.MatchString(NormalizeLanguage(code))
}

// NormalizeLanguage trims code and uses '-' between subtags, so a language
// embedded in an artifact name never contains the '_' that separates name parts
func NormalizeLanguage(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
}

// Stem derives a filesystem-safe stem from a client-supplied filename
func Stem(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = stemCleanRe.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_-")
	if base == "" {
		base = "video"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	return base
}

// VideoExt returns the normalized container extension of an upload, defaulting to .mp4.
// Derived videos keep this container so the video stream can be copied.
func VideoExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v":
		return ext
	default:
		return ".mp4"
	}
}

// Names builds every artifact name for one session
type Names struct {
	Session string
	Stem    string
}

// SourceVideo is the uploaded video stored in BucketUploads
func (n Names) SourceVideo(ext string) string {
	return n.Session + "_source" + ext
}

// OriginalAudio is the demuxed audio track
func (n Names) OriginalAudio() string {
	return fmt.Sprintf("%s_%s_original_audio.mp3", n.Session, n.Stem)
}

// CanonicalWAV is the resampled recognition input
func (n Names) CanonicalWAV() string {
	return fmt.Sprintf("%s_%s_audio.wav", n.Session, n.Stem)
}

// Transcript is the recognized text
func (n Names) Transcript() string {
	return fmt.Sprintf("%s_%s_transcription.txt", n.Session, n.Stem)
}

// TranslatedText is the translation for one target language
func (n Names) TranslatedText(lang string) string {
	return fmt.Sprintf("%s_translated_%s.txt", n.Session, NormalizeLanguage(lang))
}

// SynthesizedAudio is the speech synthesized for one language
func (n Names) SynthesizedAudio(lang, ext string) string {
	if ext == "" {
		ext = ".mp3"
	}
	return fmt.Sprintf("%s_translated_%s%s", n.Session, NormalizeLanguage(lang), ext)
}

// SilentVideo is the source video with its audio removed, in the source container
func (n Names) SilentVideo(ext string) string {
	return n.Session + "_video_no_audio" + containerExt(ext)
}

// MergedVideo is the final dubbed video for one language, in the source container
func (n Names) MergedVideo(lang, ext string) string {
	if lang == "" {
		return n.Session + "_merged" + containerExt(ext)
	}
	return fmt.Sprintf("%s_merged_%s%s", n.Session, NormalizeLanguage(lang), containerExt(ext))
}

func containerExt(ext string) string {
	if ext == "" {
		return ".mp4"
	}
	return VideoExt("x" + ext)
}

// Kind identifies which stage produced an artifact in the audio bucket
type Kind int

const (
	KindUnknown Kind = iota
	KindOriginalAudio
	KindCanonicalWAV
	KindTranscript
	KindTranslatedText
	KindSynthesizedAudio
)

// Classify parses an audio bucket name built by Names. Stem-derived suffixes
// are matched first because a stem may itself start with "translated_".
// lang is set for translations and synthesized audio only.
func Classify(name string) (kind Kind, lang string) {
	session, ok := SessionFromName(name)
	if !ok {
		return KindUnknown, ""
	}
	rest := strings.TrimPrefix(name, session+"_")

	switch {
	case strings.HasSuffix(rest, "_original_audio.mp3"):
		return KindOriginalAudio, ""
	case strings.HasSuffix(rest, "_audio.wav"):
		return KindCanonicalWAV, ""
	case strings.HasSuffix(rest, "_transcription.txt"):
		return KindTranscript, ""
	}

	tail, ok := strings.CutPrefix(rest, "translated_")
	if !ok {
		return KindUnknown, ""
	}
	ext := path.Ext(tail)
	lang = strings.TrimSuffix(tail, ext)
	if !languageRe.MatchString(lang) {
		return KindUnknown, ""
	}
	switch strings.ToLower(ext) {
	case ".txt":
		return KindTranslatedText, lang
	case ".mp3", ".wav", ".ogg":
		return KindSynthesizedAudio, lang
	default:
		return KindUnknown, ""
	}
}

// SessionFromName extracts the session prefix of an artifact name
func SessionFromName(name string) (string, bool) {
	m := sessionRe.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LanguageFromSynthesized extracts the language code of a synthesized audio name.
// It reports false for every other artifact.
func LanguageFromSynthesized(name string) (string, bool) {
	kind, lang := Classify(name)
	if kind != KindSynthesizedAudio {
		return "", false
	}
	return lang, true
}

// NameFromReference reduces a URL, path or bare name to its final element
func NameFromReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

// ContentType returns the MIME type for an artifact name
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
