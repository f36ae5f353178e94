// Package naming expands upload naming templates into storage keys.
//
// A template mixes literal text with tokens such as {Y}, {m}, {uniqid} or
// {md5}. Tokens the engine does not recognize are left verbatim: stored URLs
// embed expanded templates, so silently passing unknown tokens through keeps
// old templates working instead of breaking existing links.
package naming

import (
	"fmt"
	"math/rand"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GuestUID is the {uid} sentinel for anonymous uploads.
const GuestUID = "guest"

// Context carries the values a template expansion draws from. The same
// Context is used for both the catalogue and the filename template of one
// upload so tokens like {uniqid} stay consistent between the two.
type Context struct {
	Now      time.Time
	Filename string // original base name, extension stripped
	Ext      string // output extension: the policy target format if set, else the original one
	UniqID   string
	MD5      string
	SHA1     string
	UUID     string
	UID      string
}

// NewContext builds an expansion context for one upload.
// originalName is the client-supplied filename; convertFormat, when non-empty,
// overrides the extension {ext} resolves to.
func NewContext(now time.Time, originalName, convertFormat, md5Sum, sha1Sum, uid string) Context {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(originalName)), ".")
	if convertFormat != "" {
		ext = strings.ToLower(convertFormat)
	}
	if uid == "" {
		uid = GuestUID
	}
	return Context{
		Now:      now,
		Filename: strings.TrimSuffix(path.Base(originalName), path.Ext(originalName)),
		Ext:      ext,
		UniqID:   uniqid(now),
		MD5:      md5Sum,
		SHA1:     sha1Sum,
		UUID:     uuid.NewString(),
		UID:      uid,
	}
}

// Expand replaces every recognized token in template with its context value.
// It is pure: no I/O, no randomness beyond what the Context already fixed.
func Expand(template string, ctx Context) string {
	year := ctx.Now.Year()
	replacer := strings.NewReplacer(
		"{Y}", strconv.Itoa(year),
		"{y}", fmt.Sprintf("%02d", year%100),
		"{m}", fmt.Sprintf("%02d", int(ctx.Now.Month())),
		"{d}", fmt.Sprintf("%02d", ctx.Now.Day()),
		"{Ymd}", ctx.Now.Format("20060102"),
		"{filename}", ctx.Filename,
		"{ext}", ctx.Ext,
		"{time}", strconv.FormatInt(ctx.Now.UnixMilli(), 10),
		"{uniqid}", ctx.UniqID,
		"{md5}", ctx.MD5,
		"{sha1}", ctx.SHA1,
		"{uuid}", ctx.UUID,
		"{uid}", ctx.UID,
	)
	return replacer.Replace(template)
}

// uniqid produces a short id from the millisecond timestamp plus a random
// base-36 suffix, matching the shape of the ids embedded in existing URLs.
func uniqid(now time.Time) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 11)
	for i := range suffix {
		suffix[i] = digits[rand.Intn(len(digits))]
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + string(suffix)
}
