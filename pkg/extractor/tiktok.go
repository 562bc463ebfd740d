package extractor

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

var tiktokItemID = regexp.MustCompile(`/(?:video|photo)/(\d+)`)

// tiktokStatusKinds maps provider body status codes to taxonomy kinds
var tiktokStatusKinds = map[int]errors.Kind{
	10204: errors.KindNotFound,
	10216: errors.KindPrivateContent,
	10222: errors.KindPrivateContent,
	10231: errors.KindGeoBlocked,
}

// TikTok extracts videos and photo-mode slideshows. Public content needs
// no credential; a checked-out one is only attached under force-fresh.
type TikTok struct {
	base
	apiBase string
}

// NewTikTok creates the TikTok adapter
func NewTikTok(deps Deps) *TikTok {
	return &TikTok{
		base:    base{deps: deps, plat: platform.TikTok, requiresAuth: false},
		apiBase: "https://www.tiktok.com",
	}
}

// Extract implements the extraction contract
func (t *TikTok) Extract(ctx context.Context, canonicalURL string, opts Options) *media.Result {
	return t.extract(ctx, canonicalURL, opts, func(ctx context.Context, headers map[string]string, opts Options) (*media.Result, error) {
		return t.fetch(ctx, canonicalURL, headers, opts)
	})
}

func (t *TikTok) fetch(ctx context.Context, canonicalURL string, headers map[string]string, opts Options) (*media.Result, error) {
	m := tiktokItemID.FindStringSubmatch(canonicalURL)
	if m == nil {
		return nil, errors.New(errors.KindInvalidURL, "tiktok URL carries no item id")
	}

	var resp tiktokResponse
	endpoint := fmt.Sprintf("%s/api/item/detail/?itemId=%s", t.apiBase, m[1])
	if err := t.deps.Client.GetJSON(ctx, t.plat, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	if resp.StatusCode != 0 {
		kind, ok := tiktokStatusKinds[resp.StatusCode]
		if !ok {
			kind = errors.KindAPI
		}
		return nil, errors.Newf(kind, "tiktok item detail returned status %d", resp.StatusCode).
			WithCode(resp.StatusCode)
	}

	return t.normalize(resp.ItemInfo.ItemStruct, opts), nil
}

type tiktokResponse struct {
	StatusCode int `json:"statusCode"`
	ItemInfo   struct {
		ItemStruct tiktokItem `json:"itemStruct"`
	} `json:"itemInfo"`
}

type tiktokItem struct {
	ID     string `json:"id"`
	Desc   string `json:"desc"`
	Author struct {
		UniqueID    string `json:"uniqueId"`
		Nickname    string `json:"nickname"`
		AvatarThumb string `json:"avatarThumb"`
	} `json:"author"`
	Video struct {
		PlayAddr     string              `json:"playAddr"`
		DownloadAddr string              `json:"downloadAddr"`
		Cover        string              `json:"cover"`
		Bitrate      int                 `json:"bitrate"`
		BitrateInfo  []tiktokBitrateInfo `json:"bitrateInfo"`
	} `json:"video"`
	ImagePost struct {
		Images []struct {
			ImageURL struct {
				URLList []string `json:"urlList"`
			} `json:"imageURL"`
		} `json:"images"`
	} `json:"imagePost"`
	Music struct {
		Title   string `json:"title"`
		PlayURL string `json:"playUrl"`
	} `json:"music"`
	Stats struct {
		DiggCount    int64 `json:"diggCount"`
		CommentCount int64 `json:"commentCount"`
		ShareCount   int64 `json:"shareCount"`
		PlayCount    int64 `json:"playCount"`
	} `json:"stats"`
}

type tiktokBitrateInfo struct {
	GearName string `json:"gearName"`
	Bitrate  int    `json:"bitrate"`
	PlayAddr struct {
		URLList []string `json:"urlList"`
	} `json:"playAddr"`
}

// normalize converts a provider item into the media model
func (t *TikTok) normalize(item tiktokItem, opts Options) *media.Result {
	result := &media.Result{
		Title:      item.Desc,
		Author:     item.Author.UniqueID,
		AuthorName: item.Author.Nickname,
		Thumbnail:  item.Video.Cover,
	}

	if len(item.ImagePost.Images) > 0 {
		// Photo mode: one image format per slide, provider order.
		result.Type = media.TypeSlideshow
		for i, img := range item.ImagePost.Images {
			if len(img.ImageURL.URLList) == 0 {
				continue
			}
			result.Formats = append(result.Formats, media.Format{
				Type:   media.FormatImage,
				URL:    img.ImageURL.URLList[0],
				Label:  fmt.Sprintf("Image %d", i+1),
				ItemID: fmt.Sprintf("%s-%d", item.ID, i+1),
			})
		}
		if item.Music.PlayURL != "" {
			result.Formats = append(result.Formats, media.Format{
				Type:   media.FormatAudio,
				URL:    item.Music.PlayURL,
				Label:  "Audio",
				ItemID: item.ID + "-audio",
			})
		}
	} else {
		result.Type = media.TypeVideo
		result.Formats = t.videoFormats(item, opts)
	}

	if eng := (media.Engagement{
		Likes:    item.Stats.DiggCount,
		Comments: item.Stats.CommentCount,
		Shares:   item.Stats.ShareCount,
		Views:    item.Stats.PlayCount,
	}); !eng.Zero() {
		result.Engagement = &eng
	}

	return result
}

// videoFormats emits every quality tier the provider exposed, highest
// bitrate first so the primary format is always the best variant, with
// the remaining tiers under quality labels.
func (t *TikTok) videoFormats(item tiktokItem, opts Options) []media.Format {
	var formats []media.Format

	tiers := make([]tiktokBitrateInfo, len(item.Video.BitrateInfo))
	copy(tiers, item.Video.BitrateInfo)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Bitrate > tiers[j].Bitrate })

	for _, tier := range tiers {
		if len(tier.PlayAddr.URLList) == 0 {
			continue
		}
		label := "Video"
		if len(formats) > 0 {
			label = fmt.Sprintf("Video (%s)", tier.GearName)
		}
		formats = append(formats, media.Format{
			Type:      media.FormatVideo,
			URL:       tier.PlayAddr.URLList[0],
			Label:     label,
			ItemID:    item.ID,
			Thumbnail: item.Video.Cover,
		})
	}

	if len(formats) == 0 {
		addr := item.Video.PlayAddr
		if opts.PreferHighQuality && item.Video.DownloadAddr != "" {
			addr = item.Video.DownloadAddr
		}
		if addr != "" {
			formats = append(formats, media.Format{
				Type:      media.FormatVideo,
				URL:       addr,
				Label:     "Video",
				ItemID:    item.ID,
				Thumbnail: item.Video.Cover,
			})
		}
	}

	if item.Music.PlayURL != "" {
		formats = append(formats, media.Format{
			Type:   media.FormatAudio,
			URL:    item.Music.PlayURL,
			Label:  "Audio",
			ItemID: item.ID + "-audio",
		})
	}

	return formats
}
