package domain

import (
	"encoding/json"
	"strings"
)

// ImageResult is one of the shapes image providers have historically produced.
// NormalizeImage is the only place that turns it into the canonical Image.
type ImageResult interface {
	imageResult()
}

// FlatImage carries the fields at the top level.
type FlatImage struct {
	URL     string `json:"url"`
	Credit  string `json:"credit"`
	License string `json:"license"`
	Source  string `json:"source"`
	Status  string `json:"status"`
}

// NestedImage wraps the fields in an "image" object with an optional outer status.
type NestedImage struct {
	Image  *FlatImage `json:"image"`
	Status string     `json:"status"`
}

// ImageList is the "images": [...] shape; the first entry with a URL wins.
type ImageList struct {
	Images []FlatImage `json:"images"`
}

func (FlatImage) imageResult()   {}
func (NestedImage) imageResult() {}
func (ImageList) imageResult()   {}

// MissingImage is the explicit terminal outcome when no provider passes.
func MissingImage() FlatImage {
	return FlatImage{URL: "", Status: ImageMissing}
}

// NormalizeImage reduces any provider shape to {url, credit, license, source, status}.
// A result without a URL yields nil, except the explicit missing marker which is kept
// so the stored card records that resolution was attempted.
func NormalizeImage(res ImageResult) *Image {
	switch r := res.(type) {
	case nil:
		return nil
	case NestedImage:
		if r.Image == nil {
			return nil
		}
		status := firstNonEmpty(r.Image.Status, r.Status)
		return fromFlat(*r.Image, status)
	case *NestedImage:
		if r == nil {
			return nil
		}
		return NormalizeImage(*r)
	case FlatImage:
		if strings.TrimSpace(r.URL) == "" {
			if r.Status == ImageMissing {
				return &Image{Status: ImageMissing}
			}
			return nil
		}
		return fromFlat(r, r.Status)
	case *FlatImage:
		if r == nil {
			return nil
		}
		return NormalizeImage(*r)
	case ImageList:
		if len(r.Images) == 0 {
			return nil
		}
		first := r.Images[0]
		for _, it := range r.Images {
			if strings.TrimSpace(it.URL) != "" {
				first = it
				break
			}
		}
		return fromFlat(first, first.Status)
	case *ImageList:
		if r == nil {
			return nil
		}
		return NormalizeImage(*r)
	}
	return nil
}

func fromFlat(f FlatImage, status string) *Image {
	url := strings.TrimSpace(f.URL)
	if url == "" {
		return nil
	}
	if status == "" {
		status = ImageOK
	}
	return &Image{
		URL:     url,
		Credit:  f.Credit,
		License: f.License,
		Source:  f.Source,
		Status:  status,
	}
}

// ParseImageJSON classifies a stored image fragment. Precedence follows the
// legacy readers: nested object, then flat fields, then the images array.
func ParseImageJSON(raw []byte) ImageResult {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var probe struct {
		Image   json.RawMessage   `json:"image"`
		Images  []json.RawMessage `json:"images"`
		Status  string            `json:"status"`
		URL     string            `json:"url"`
		Credit  string            `json:"credit"`
		License string            `json:"license"`
		Source  string            `json:"source"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}

	if inner := strings.TrimSpace(string(probe.Image)); strings.HasPrefix(inner, "{") {
		var f FlatImage
		if err := json.Unmarshal(probe.Image, &f); err == nil {
			return NestedImage{Image: &f, Status: probe.Status}
		}
	}

	if probe.URL != "" || probe.Credit != "" || probe.License != "" || probe.Status == ImageMissing {
		return FlatImage{
			URL:     probe.URL,
			Credit:  probe.Credit,
			License: probe.License,
			Source:  probe.Source,
			Status:  probe.Status,
		}
	}

	if len(probe.Images) > 0 {
		list := ImageList{Images: make([]FlatImage, 0, len(probe.Images))}
		for _, item := range probe.Images {
			var it struct {
				FlatImage
				ImageURL string `json:"imageUrl"`
			}
			if err := json.Unmarshal(item, &it); err != nil {
				continue
			}
			if it.URL == "" {
				it.URL = it.ImageURL
			}
			list.Images = append(list.Images, it.FlatImage)
		}
		return list
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
