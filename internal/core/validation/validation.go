// Package validation holds the side-effect free admission rules for uploads
// and questions, and the storage-name derivation used by the local store.
package validation

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

const (
	MaxUploadBytes int64 = 50 << 20

	PDFContentType = "application/pdf"
	PDFExtension   = ".pdf"

	MinQuestionRunes = 3
	MaxQuestionRunes = 1000

	UnnamedFile = "unnamed_file"

	storageTimeLayout = "20060102_150405"
)

var (
	errEmptyFile       = errors.New("file is empty")
	errTooLarge        = fmt.Errorf("file exceeds %d MiB", MaxUploadBytes>>20)
	errNotPDFExtension = errors.New("only .pdf files are supported")
	errNotPDFType      = errors.New("content type must be application/pdf")
)

// CheckUpload returns the first failing admission rule for candidate, or nil.
// The checks are independent; the order only decides which reason is reported.
func CheckUpload(candidate domain.UploadCandidate) error {
	var reason error
	switch {
	case candidate.Size <= 0:
		reason = errEmptyFile
	case candidate.Size > MaxUploadBytes:
		reason = errTooLarge
	case !strings.EqualFold(filepath.Ext(candidate.Name), PDFExtension):
		reason = errNotPDFExtension
	case !isPDFContentType(candidate.ContentType):
		reason = errNotPDFType
	default:
		return nil
	}
	return domain.WrapError(domain.ErrValidation, "validate upload "+candidate.Name, reason)
}

func IsAcceptableUpload(candidate domain.UploadCandidate) bool {
	return CheckUpload(candidate) == nil
}

func isPDFContentType(raw string) bool {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, PDFContentType)
}

// CheckQuestion applies the question length rules: trimmed length at least
// MinQuestionRunes and raw length at most MaxQuestionRunes.
func CheckQuestion(text string) error {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return domain.NewError(domain.ErrValidation, "validate question", "question is empty")
	case utf8.RuneCountInString(trimmed) < MinQuestionRunes:
		return domain.NewError(domain.ErrValidation, "validate question",
			fmt.Sprintf("question must be at least %d characters", MinQuestionRunes))
	case utf8.RuneCountInString(text) > MaxQuestionRunes:
		return domain.NewError(domain.ErrValidation, "validate question",
			fmt.Sprintf("question must be at most %d characters", MaxQuestionRunes))
	}
	return nil
}

func IsAcceptableQuestion(text string) bool {
	return CheckQuestion(text) == nil
}

// SanitizeName strips every character that is illegal in a storage path
// component, then trims surrounding spaces and dots so that "." and ".." can
// never survive. The result is stable under a second application.
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if isIllegalNameRune(r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return UnnamedFile
	}
	return cleaned
}

func isIllegalNameRune(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*', utf8.RuneError:
		return true
	}
	return r < 0x20 || r == 0x7f
}

// nameSeq feeds the random suffix of UniqueStorageName. The odd stride visits
// every uint32 before repeating, so suffixes never collide within a process.
var nameSeq atomic.Uint32

const nameStride = 0x9E3779B1

func init() {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		nameSeq.Store(binary.BigEndian.Uint32(seed[:]))
	}
}

// UniqueStorageName derives {base}_{yyyyMMdd_HHmmss}_{8 hex}{ext} from the
// original upload name.
func UniqueStorageName(originalName string) string {
	return uniqueStorageNameAt(originalName, time.Now())
}

func uniqueStorageNameAt(originalName string, now time.Time) string {
	name := SanitizeName(filepath.Base(strings.ReplaceAll(originalName, "\\", "/")))
	ext := filepath.Ext(name)
	base := strings.TrimRight(strings.TrimSuffix(name, ext), " .")
	if base == "" {
		base = UnnamedFile
	}
	suffix := nameSeq.Add(nameStride)
	return fmt.Sprintf("%s_%s_%08x%s", base, now.Format(storageTimeLayout), suffix, ext)
}
