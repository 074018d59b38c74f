// Package titleparse extracts structured fields from scene-style release
// titles such as "Harbor.Lights.2003.1080p.WEB-DL.x264-NOGRP".
package titleparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/releasarr/internal/category"
)

// Parsed holds the fields extracted from a raw title. Nil means unknown.
type Parsed struct {
	TitleClean   *string
	Year         *int
	Season       *int
	Episode      *int
	Resolution   *string
	Codec        *string
	ReleaseGroup *string
	MediaType    *string
}

var (
	episodeRe    = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?E(\d{1,3})\b`)
	seasonRe     = regexp.MustCompile(`(?i)\b(?:S(\d{1,2})|Saison[ ._-]?(\d{1,2})|Season[ ._-]?(\d{1,2}))\b`)
	crossEpRe    = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	yearRe       = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	resolutionRe = regexp.MustCompile(`(?i)\b(2160p|1080p|1080i|720p|576p|480p|4k|uhd)\b`)
	codecRe      = regexp.MustCompile(`(?i)\b(x264|x265|h[ .]?264|h[ .]?265|hevc|avc|av1|xvid|divx|vp9)\b`)
	groupRe      = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\[[^\]]*\])?$`)
	// Tokens that end the title part when no year or episode marker exists.
	stopRe = regexp.MustCompile(`(?i)\b(2160p|1080p|1080i|720p|576p|480p|4k|uhd|web[ ._-]?dl|webrip|bluray|bdrip|brrip|hdtv|dvdrip|hdrip|remux|multi|vostfr|truefrench|french|vff|vfq|x264|x265|hevc|complete|integrale|intégrale)\b`)
	bracketRe = regexp.MustCompile(`^\s*[\[(][^\])]*[\])]\s*`)
)

// Parser implements the ingestion title parser.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts fields from raw. The resolved category is used as a hint
// for the media type when the title carries no season/episode marker.
func (p *Parser) Parse(raw string, hint category.Category) Parsed {
	var out Parsed

	title := strings.TrimSpace(raw)
	if title == "" {
		return out
	}
	// Leading tags like "[Team]" are release groups on anime trackers.
	if m := bracketRe.FindString(title); m != "" {
		group := strings.Trim(strings.TrimSpace(m), "[]()")
		if group != "" {
			out.ReleaseGroup = &group
		}
		title = title[len(m):]
	}

	cut := len(title)
	mark := func(idx int) {
		if idx >= 0 && idx < cut {
			cut = idx
		}
	}

	if m := episodeRe.FindStringSubmatchIndex(title); m != nil {
		out.Season = atoi(title[m[2]:m[3]])
		out.Episode = atoi(title[m[4]:m[5]])
		mark(m[0])
	} else if m := crossEpRe.FindStringSubmatchIndex(title); m != nil {
		out.Season = atoi(title[m[2]:m[3]])
		out.Episode = atoi(title[m[4]:m[5]])
		mark(m[0])
	} else if m := seasonRe.FindStringSubmatchIndex(title); m != nil {
		for g := 2; g+1 < len(m); g += 2 {
			if m[g] >= 0 {
				out.Season = atoi(title[m[g]:m[g+1]])
				break
			}
		}
		mark(m[0])
	}

	// The last year-like token is the year; earlier ones can be part of the title ("2001 A Space...").
	if years := yearRe.FindAllStringSubmatchIndex(title, -1); len(years) > 0 {
		last := years[len(years)-1]
		if last[0] > 0 {
			out.Year = atoi(title[last[2]:last[3]])
			mark(last[0])
		}
	}

	if m := resolutionRe.FindString(title); m != "" {
		res := strings.ToLower(m)
		if res == "4k" || res == "uhd" {
			res = "2160p"
		}
		out.Resolution = &res
	}

	if m := codecRe.FindString(title); m != "" {
		codec := normalizeCodec(m)
		out.Codec = &codec
	}

	if out.ReleaseGroup == nil {
		if m := groupRe.FindStringSubmatch(title); m != nil && !yearRe.MatchString(m[1]) {
			group := m[1]
			out.ReleaseGroup = &group
		}
	}

	if loc := stopRe.FindStringIndex(title); loc != nil {
		mark(loc[0])
	}

	if clean := cleanTitle(title[:cut]); clean != "" {
		out.TitleClean = &clean
	}

	out.MediaType = mediaType(out, hint)
	return out
}

func cleanTitle(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = strings.Trim(s, " -([")
	return strings.Join(strings.Fields(s), " ")
}

func normalizeCodec(m string) string {
	c := strings.ToLower(strings.NewReplacer(" ", "", ".", "").Replace(m))
	switch c {
	case "h264", "avc":
		return "x264"
	case "h265", "hevc":
		return "x265"
	}
	return c
}

func mediaType(p Parsed, hint category.Category) *string {
	var t string
	switch {
	case p.Episode != nil || p.Season != nil:
		t = "series"
	default:
		t = hint.MediaType()
	}
	if t == "" {
		return nil
	}
	return &t
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
