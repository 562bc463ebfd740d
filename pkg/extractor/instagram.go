package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

var instagramShortcode = regexp.MustCompile(`/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)

// Provider media_type discriminator values
const (
	instagramMediaImage    = 1
	instagramMediaVideo    = 2
	instagramMediaCarousel = 8
)

// Instagram extracts posts, reels, and carousels. The platform rejects
// anonymous API access for this content class, so every call runs with a
// checked-out credential; an empty pool fails the extraction outright.
type Instagram struct {
	base
	apiBase string
}

// NewInstagram creates the Instagram adapter
func NewInstagram(deps Deps) *Instagram {
	return &Instagram{
		base:    base{deps: deps, plat: platform.Instagram, requiresAuth: true},
		apiBase: "https://www.instagram.com",
	}
}

// Extract implements the extraction contract
func (g *Instagram) Extract(ctx context.Context, canonicalURL string, opts Options) *media.Result {
	return g.extract(ctx, canonicalURL, opts, func(ctx context.Context, headers map[string]string, opts Options) (*media.Result, error) {
		return g.fetch(ctx, canonicalURL, headers, opts)
	})
}

func (g *Instagram) fetch(ctx context.Context, canonicalURL string, headers map[string]string, opts Options) (*media.Result, error) {
	m := instagramShortcode.FindStringSubmatch(canonicalURL)
	if m == nil {
		return nil, errors.New(errors.KindInvalidURL, "instagram URL carries no shortcode")
	}

	var resp instagramResponse
	endpoint := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", g.apiBase, m[1])
	err := g.deps.Client.GetJSON(ctx, g.plat, endpoint, headers, &resp)
	if err != nil {
		// A login wall or a consent interstitial comes back as HTML, which
		// fails JSON decoding. The post page still exposes OpenGraph
		// metadata, so degrade to that before giving up.
		if errors.KindOf(err) == errors.KindParse {
			return fetchOpenGraph(ctx, g.deps.Client, g.plat, canonicalURL, headers)
		}
		return nil, err
	}

	if resp.Status == "fail" {
		return nil, instagramFailure(resp.Message)
	}
	if len(resp.Items) == 0 {
		return nil, errors.New(errors.KindNoMedia, "instagram response carries no items")
	}

	return g.normalize(resp.Items[0], opts), nil
}

func instagramFailure(message string) error {
	switch {
	case strings.Contains(message, "checkpoint"),
		strings.Contains(message, "challenge"):
		return errors.New(errors.KindCheckpointRequired, "instagram flagged the account for verification")
	case strings.Contains(message, "login"):
		return errors.New(errors.KindCookieExpired, "instagram no longer accepts the session cookie")
	case strings.Contains(message, "feedback"):
		return errors.New(errors.KindCookieBanned, "instagram restricted the account")
	default:
		return errors.Newf(errors.KindAPI, "instagram request failed: %s", message)
	}
}

type instagramResponse struct {
	Items   []instagramItem `json:"items"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

type instagramItem struct {
	PK        int64  `json:"pk"`
	Code      string `json:"code"`
	MediaType int    `json:"media_type"`
	Caption   struct {
		Text string `json:"text"`
	} `json:"caption"`
	User struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	} `json:"user"`
	ImageVersions2 instagramImageVersions `json:"image_versions2"`
	VideoVersions  []instagramVideo       `json:"video_versions"`
	CarouselMedia  []instagramItem        `json:"carousel_media"`
	LikeCount      int64                  `json:"like_count"`
	CommentCount   int64                  `json:"comment_count"`
	PlayCount      int64                  `json:"play_count"`
}

type instagramImageVersions struct {
	Candidates []instagramCandidate `json:"candidates"`
}

type instagramCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type instagramVideo struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// normalize converts a provider item into the media model. Carousels
// collapse into one format per child in provider order.
func (g *Instagram) normalize(item instagramItem, opts Options) *media.Result {
	result := &media.Result{
		Title:      item.Caption.Text,
		Author:     item.User.Username,
		AuthorName: item.User.FullName,
		Thumbnail:  item.thumbnail(),
	}

	switch item.MediaType {
	case instagramMediaCarousel:
		result.Type = media.TypeSlideshow
		for i, child := range item.CarouselMedia {
			itemID := fmt.Sprintf("%s-%d", item.Code, i+1)
			result.Formats = append(result.Formats, g.itemFormats(child, itemID, opts)...)
		}
	case instagramMediaVideo:
		result.Type = media.TypeVideo
		result.Formats = g.itemFormats(item, item.Code, opts)
	default:
		result.Type = media.TypeImage
		result.Formats = g.itemFormats(item, item.Code, opts)
	}

	if eng := (media.Engagement{
		Likes:    item.LikeCount,
		Comments: item.CommentCount,
		Views:    item.PlayCount,
	}); !eng.Zero() {
		result.Engagement = &eng
	}

	return result
}

// itemFormats emits the formats for one item or carousel child. The
// provider orders variants best first, so index zero is the primary tier.
func (g *Instagram) itemFormats(item instagramItem, itemID string, opts Options) []media.Format {
	var formats []media.Format

	if item.MediaType == instagramMediaVideo && len(item.VideoVersions) > 0 {
		// The provider already orders versions best first.
		for i, v := range item.VideoVersions {
			label := "Video"
			if i > 0 {
				label = fmt.Sprintf("Video (%dp)", v.Height)
			}
			formats = append(formats, media.Format{
				Type:      media.FormatVideo,
				URL:       v.URL,
				Label:     label,
				ItemID:    itemID,
				Thumbnail: item.thumbnail(),
			})
		}
		return formats
	}

	// Candidates are scaled renditions of one image, largest first; every
	// tier is exposed, the smaller ones under size labels.
	for i, c := range item.ImageVersions2.Candidates {
		label := "Image"
		if i > 0 {
			label = fmt.Sprintf("Image (%dx%d)", c.Width, c.Height)
		}
		formats = append(formats, media.Format{
			Type:   media.FormatImage,
			URL:    c.URL,
			Label:  label,
			ItemID: itemID,
		})
	}
	return formats
}

func (i instagramItem) thumbnail() string {
	if len(i.ImageVersions2.Candidates) > 0 {
		return i.ImageVersions2.Candidates[0].URL
	}
	return ""
}
