// Package platform classifies submitted URLs into supported content
// platforms and canonical content URLs.
package platform

// Platform identifies one supported content provider
type Platform string

const (
	TikTok    Platform = "tiktok"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
)

// All lists every supported platform
func All() []Platform {
	return []Platform{TikTok, Instagram, Twitter}
}

// Valid reports whether p is a known platform
func (p Platform) Valid() bool {
	switch p {
	case TikTok, Instagram, Twitter:
		return true
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}
