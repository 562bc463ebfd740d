package extractor

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

// fetchOpenGraph fetches the content page itself and builds a reduced
// result from its OpenGraph meta tags. It is the fallback for providers
// whose structured endpoint answered with an HTML interstitial.
func fetchOpenGraph(ctx context.Context, client *Client, p platform.Platform, pageURL string, headers map[string]string) (*media.Result, error) {
	doc, err := client.GetDocument(ctx, p, pageURL, headers)
	if err != nil {
		return nil, err
	}

	result := &media.Result{
		Title:  metaContent(doc, "og:title"),
		Author: metaContent(doc, "og:site_name"),
	}

	if video := metaContent(doc, "og:video"); video != "" {
		result.Type = media.TypeVideo
		result.Formats = append(result.Formats, media.Format{
			Type:      media.FormatVideo,
			URL:       video,
			Label:     "Video",
			Thumbnail: metaContent(doc, "og:image"),
		})
	} else if image := metaContent(doc, "og:image"); image != "" {
		result.Type = media.TypeImage
		result.Formats = append(result.Formats, media.Format{
			Type:  media.FormatImage,
			URL:   image,
			Label: "Image",
		})
	} else {
		return nil, errors.New(errors.KindNoMedia, "page exposes no OpenGraph media")
	}

	result.Thumbnail = metaContent(doc, "og:image")
	return result, nil
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return content
}
