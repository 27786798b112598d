// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"encoding/xml"
	"strings"
)

// Element and attribute tags carry no namespace, so encoding/xml matches them
// by local name. Prefixed attributes such as cenc:default_KID match too.

type mpdDoc struct {
	XMLName                   xml.Name  `xml:"MPD"`
	Type                      string    `xml:"type,attr"`
	AvailabilityStartTime     string    `xml:"availabilityStartTime,attr"`
	MediaPresentationDuration string    `xml:"mediaPresentationDuration,attr"`
	BaseURLs                  []baseURL `xml:"BaseURL"`
	Periods                   []period  `xml:"Period"`
}

type baseURL struct {
	Value string `xml:",chardata"`
}

type period struct {
	ID              string           `xml:"id,attr"`
	Start           string           `xml:"start,attr"`
	BaseURLs        []baseURL        `xml:"BaseURL"`
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *segmentList     `xml:"SegmentList"`
	SegmentBase     *segmentBase     `xml:"SegmentBase"`
	AdaptationSets  []adaptationSet  `xml:"AdaptationSet"`
	EventStreams    []eventStream    `xml:"EventStream"`
}

type descriptor struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

type label struct {
	Value string `xml:",chardata"`
}

type adaptationSet struct {
	ID                 string              `xml:"id,attr"`
	ContentType        string              `xml:"contentType,attr"`
	MimeType           string              `xml:"mimeType,attr"`
	Codecs             string              `xml:"codecs,attr"`
	Lang               string              `xml:"lang,attr"`
	Width              string              `xml:"width,attr"`
	Height             string              `xml:"height,attr"`
	FrameRate          string              `xml:"frameRate,attr"`
	Labels             []label             `xml:"Label"`
	Roles              []descriptor        `xml:"Role"`
	ChannelConfigs     []descriptor        `xml:"AudioChannelConfiguration"`
	ContentProtections []contentProtection `xml:"ContentProtection"`
	BaseURLs           []baseURL           `xml:"BaseURL"`
	SegmentTemplate    *segmentTemplate    `xml:"SegmentTemplate"`
	SegmentList        *segmentList        `xml:"SegmentList"`
	SegmentBase        *segmentBase        `xml:"SegmentBase"`
	Representations    []representation    `xml:"Representation"`
}

type representation struct {
	ID                 string              `xml:"id,attr"`
	Bandwidth          string              `xml:"bandwidth,attr"`
	Width              string              `xml:"width,attr"`
	Height             string              `xml:"height,attr"`
	FrameRate          string              `xml:"frameRate,attr"`
	Codecs             string              `xml:"codecs,attr"`
	MimeType           string              `xml:"mimeType,attr"`
	ChannelConfigs     []descriptor        `xml:"AudioChannelConfiguration"`
	ContentProtections []contentProtection `xml:"ContentProtection"`
	BaseURLs           []baseURL           `xml:"BaseURL"`
	SegmentTemplate    *segmentTemplate    `xml:"SegmentTemplate"`
	SegmentList        *segmentList        `xml:"SegmentList"`
	SegmentBase        *segmentBase        `xml:"SegmentBase"`
}

type licenseURL struct {
	Value      string `xml:",chardata"`
	LicenseURL string `xml:"licenseUrl,attr"`
}

type contentProtection struct {
	SchemeIDURI string       `xml:"schemeIdUri,attr"`
	Value       string       `xml:"value,attr"`
	DefaultKID  string       `xml:"default_KID,attr"`
	PSSH        []string     `xml:"pssh"`
	LaURL       []licenseURL `xml:"laurl"`
	LaURLCaps   []licenseURL `xml:"Laurl"`
	LaURLAlt    []licenseURL `xml:"la_url"`
}

type urlType struct {
	SourceURL string `xml:"sourceURL,attr"`
	Range     string `xml:"range,attr"`
}

type segmentBase struct {
	Timescale      string   `xml:"timescale,attr"`
	IndexRange     string   `xml:"indexRange,attr"`
	Initialization *urlType `xml:"Initialization"`
}

type timelineEntry struct {
	T *uint64 `xml:"t,attr"`
	D uint64  `xml:"d,attr"`
	R int64   `xml:"r,attr"`
}

type segmentTimeline struct {
	S []timelineEntry `xml:"S"`
}

type segmentTemplate struct {
	Media                  string           `xml:"media,attr"`
	Initialization         string           `xml:"initialization,attr"`
	Timescale              string           `xml:"timescale,attr"`
	Duration               string           `xml:"duration,attr"`
	StartNumber            string           `xml:"startNumber,attr"`
	PresentationTimeOffset string           `xml:"presentationTimeOffset,attr"`
	Timeline               *segmentTimeline `xml:"SegmentTimeline"`
}

type segmentURL struct {
	Media      string `xml:"media,attr"`
	MediaRange string `xml:"mediaRange,attr"`
}

type segmentList struct {
	Timescale      string       `xml:"timescale,attr"`
	Duration       string       `xml:"duration,attr"`
	Initialization *urlType     `xml:"Initialization"`
	SegmentURLs    []segmentURL `xml:"SegmentURL"`
}

type binarySignal struct {
	Binary []string `xml:"Binary"`
}

type event struct {
	ID               string         `xml:"id,attr"`
	PresentationTime string         `xml:"presentationTime,attr"`
	Duration         string         `xml:"duration,attr"`
	MessageData      string         `xml:"messageData,attr"`
	Text             string         `xml:",chardata"`
	Signals          []binarySignal `xml:"Signal"`
	SpliceInfo       []struct{}     `xml:"SpliceInfoSection"`
}

type eventStream struct {
	SchemeIDURI            string  `xml:"schemeIdUri,attr"`
	Value                  string  `xml:"value,attr"`
	Timescale              string  `xml:"timescale,attr"`
	PresentationTimeOffset string  `xml:"presentationTimeOffset,attr"`
	Events                 []event `xml:"Event"`
}

func firstBaseURL(urls []baseURL) string {
	for _, u := range urls {
		if v := strings.TrimSpace(u.Value); v != "" {
			return v
		}
	}
	return ""
}

func firstLabel(labels []label) *string {
	for _, l := range labels {
		if v := strings.TrimSpace(l.Value); v != "" {
			return &v
		}
	}
	return nil
}

func (cp contentProtection) licenseURL() string {
	for _, group := range [][]licenseURL{cp.LaURL, cp.LaURLCaps, cp.LaURLAlt} {
		for _, l := range group {
			if v := strings.TrimSpace(l.LicenseURL); v != "" {
				return v
			}
			if v := strings.TrimSpace(l.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func (cp contentProtection) pssh() string {
	for _, p := range cp.PSSH {
		if v := strings.TrimSpace(p); v != "" {
			return v
		}
	}
	return ""
}
