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

var (
	twitterStatusID = regexp.MustCompile(`/status/(\d+)`)
	// Variant URLs carry the rendition size in their path, e.g.
	// /ext_tw_video/123/pu/vid/640x360/abc.mp4.
	twitterResolution = regexp.MustCompile(`/(\d+x\d+)/`)
)

// Twitter extracts tweet media through the syndication endpoint, which
// serves public tweets without authentication.
type Twitter struct {
	base
	apiBase string
}

// NewTwitter creates the Twitter adapter
func NewTwitter(deps Deps) *Twitter {
	return &Twitter{
		base:    base{deps: deps, plat: platform.Twitter, requiresAuth: false},
		apiBase: "https://cdn.syndication.twimg.com",
	}
}

// Extract implements the extraction contract
func (t *Twitter) Extract(ctx context.Context, canonicalURL string, opts Options) *media.Result {
	return t.extract(ctx, canonicalURL, opts, func(ctx context.Context, headers map[string]string, opts Options) (*media.Result, error) {
		return t.fetch(ctx, canonicalURL, headers, opts)
	})
}

func (t *Twitter) fetch(ctx context.Context, canonicalURL string, headers map[string]string, opts Options) (*media.Result, error) {
	m := twitterStatusID.FindStringSubmatch(canonicalURL)
	if m == nil {
		return nil, errors.New(errors.KindInvalidURL, "twitter URL carries no status id")
	}

	var resp twitterResponse
	endpoint := fmt.Sprintf("%s/tweet-result?id=%s&lang=en", t.apiBase, m[1])
	if err := t.deps.Client.GetJSON(ctx, t.plat, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	if resp.TypeName == "TweetTombstone" {
		return nil, tombstoneFailure(resp.Tombstone.Text.Text)
	}

	return t.normalize(resp, opts), nil
}

// tombstoneFailure classifies the placeholder shown for withheld tweets
func tombstoneFailure(text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "age"):
		return errors.New(errors.KindAgeRestricted, "tweet is age-restricted")
	case strings.Contains(lower, "deleted"):
		return errors.New(errors.KindDeleted, "tweet was deleted by the author")
	default:
		return errors.New(errors.KindContentRemoved, "tweet is no longer available")
	}
}

type twitterResponse struct {
	TypeName  string `json:"__typename"`
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	Tombstone struct {
		Text struct {
			Text string `json:"text"`
		} `json:"text"`
	} `json:"tombstone"`
	User struct {
		ScreenName      string `json:"screen_name"`
		Name            string `json:"name"`
		ProfileImageURL string `json:"profile_image_url_https"`
	} `json:"user"`
	Photos []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"photos"`
	Video struct {
		Poster   string `json:"poster"`
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
	} `json:"video"`
	FavoriteCount     int64 `json:"favorite_count"`
	ConversationCount int64 `json:"conversation_count"`
}

// normalize converts a syndication payload into the media model. Multi
// photo tweets collapse into one image format per photo in tweet order.
func (t *Twitter) normalize(resp twitterResponse, opts Options) *media.Result {
	result := &media.Result{
		Title:      resp.Text,
		Author:     resp.User.ScreenName,
		AuthorName: resp.User.Name,
		Thumbnail:  resp.Video.Poster,
	}

	switch {
	case len(resp.Video.Variants) > 0:
		result.Type = media.TypeVideo
		result.Formats = t.videoFormats(resp, opts)
	case len(resp.Photos) == 1:
		result.Type = media.TypeImage
		result.Formats = append(result.Formats, media.Format{
			Type:   media.FormatImage,
			URL:    resp.Photos[0].URL,
			Label:  "Image",
			ItemID: resp.IDStr,
		})
	case len(resp.Photos) > 1:
		result.Type = media.TypeSlideshow
		for i, p := range resp.Photos {
			result.Formats = append(result.Formats, media.Format{
				Type:   media.FormatImage,
				URL:    p.URL,
				Label:  fmt.Sprintf("Image %d", i+1),
				ItemID: fmt.Sprintf("%s-%d", resp.IDStr, i+1),
			})
		}
	}

	if eng := (media.Engagement{
		Likes:    resp.FavoriteCount,
		Comments: resp.ConversationCount,
	}); !eng.Zero() {
		result.Engagement = &eng
	}

	return result
}

// videoFormats emits every mp4 variant, highest quality first. The
// syndication endpoint lists variants ascending by quality, so the walk
// runs in reverse; secondary tiers are labeled with the rendition size
// embedded in the variant URL.
func (t *Twitter) videoFormats(resp twitterResponse, _ Options) []media.Format {
	variants := resp.Video.Variants

	var formats []media.Format
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Type != "video/mp4" {
			continue
		}
		label := "Video"
		if len(formats) > 0 {
			if m := twitterResolution.FindStringSubmatch(variants[i].Src); m != nil {
				label = fmt.Sprintf("Video (%s)", m[1])
			} else {
				label = fmt.Sprintf("Video (alt %d)", len(formats))
			}
		}
		formats = append(formats, media.Format{
			Type:      media.FormatVideo,
			URL:       variants[i].Src,
			Label:     label,
			ItemID:    resp.IDStr,
			Thumbnail: resp.Video.Poster,
		})
	}
	return formats
}
