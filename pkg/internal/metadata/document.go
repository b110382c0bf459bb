// Package metadata 维护资产派生产物的元数据文档.
//
// 每个资产每个族（video_variants / image_variants）一份文档，文档是扁平的 JSON 对象:
//
//	{
//	  "original":   {"path": "assets/x/clip.mp4", "width": 1920, "height": 1080, "uploaded": true},
//	  "720p":       {"path": "assets/x/clip-720p.mp4", "width": 1280, "height": 720, "uploaded": true},
//	  "thumbnail":  {"path": "assets/x/clip-thumbnail.jpg", "uploaded": true},
//	  "thumbnails": [{"path": "assets/y/photo-thumbnail.jpg", "job_id": "01J..."}]
//	}
//
// 变体名决定合并方式：thumbnails 为可重复项，按 job_id 去重追加；其余为单值项，覆盖写入，
// uploaded 一旦为 true 不会被后续写入清除.
package metadata

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/bytedance/sonic"

	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/media"
)

// SchemaVersion 当前文档结构版本.
const SchemaVersion = 1

// 常用变体名.
const (
	NameOriginal   = "original"
	NameThumbnail  = "thumbnail"
	NameThumbnails = "thumbnails"
)

// VariantKind 变体的合并方式.
type VariantKind int

const (
	Single VariantKind = iota
	Repeated
)

// KindOf 按变体名返回合并方式.
func KindOf(name string) VariantKind {
	if name == NameThumbnails {
		return Repeated
	}

	return Single
}

// FamilyOf 媒体类别对应的元数据族.
func FamilyOf(kind media.Kind) (model.MetadataFamily, bool) {
	switch kind {
	case media.KindVideo:
		return model.FamilyVideoVariants, true
	case media.KindImage:
		return model.FamilyImageVariants, true
	default:
		return "", false
	}
}

// Variant 一个派生产物.
type Variant struct {
	Path        string  `json:"path"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Duration    float64 `json:"duration,omitempty"` // 秒
	ContentType string  `json:"content_type,omitempty"`
	Uploaded    bool    `json:"uploaded"`
	JobID       string  `json:"job_id,omitempty"`
}

// Document 一个族的全部变体.
type Document struct {
	SchemaVersion int
	Singles       map[string]Variant
	Lists         map[string][]Variant
}

// NewDocument 返回空文档.
func NewDocument() Document {
	return Document{
		SchemaVersion: SchemaVersion,
		Singles:       map[string]Variant{},
		Lists:         map[string][]Variant{},
	}
}

// Clone 深拷贝.
func (d Document) Clone() Document {
	out := NewDocument()
	if d.SchemaVersion != 0 {
		out.SchemaVersion = d.SchemaVersion
	}

	maps.Copy(out.Singles, d.Singles)

	for name, list := range d.Lists {
		out.Lists[name] = slices.Clone(list)
	}

	return out
}

// Merge 返回合并 v 后的新文档，不修改接收者.
func (d Document) Merge(name string, v Variant) Document {
	out := d.Clone()

	if KindOf(name) == Repeated {
		list := out.Lists[name]

		if v.JobID != "" {
			if i := slices.IndexFunc(list, func(e Variant) bool { return e.JobID == v.JobID }); i >= 0 {
				list[i] = stickUploaded(list[i], v)
				out.Lists[name] = list

				return out
			}
		}

		out.Lists[name] = append(list, v)

		return out
	}

	if prev, ok := out.Singles[name]; ok {
		v = stickUploaded(prev, v)
	}

	out.Singles[name] = v

	return out
}

func stickUploaded(prev, next Variant) Variant {
	if prev.Uploaded {
		next.Uploaded = true
	}

	return next
}

// Single 读取单值变体.
func (d Document) Single(name string) (Variant, bool) {
	v, ok := d.Singles[name]
	return v, ok
}

// List 读取可重复变体.
func (d Document) List(name string) []Variant {
	return d.Lists[name]
}

// Names 所有变体名，按字典序.
func (d Document) Names() []string {
	names := slices.Collect(maps.Keys(d.Singles))
	names = append(names, slices.Collect(maps.Keys(d.Lists))...)
	slices.Sort(names)

	return names
}

// Len 变体名数量.
func (d Document) Len() int {
	return len(d.Singles) + len(d.Lists)
}

// MarshalJSON 输出扁平对象，键按字典序.
func (d Document) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, d.Len())
	for name, v := range d.Singles {
		flat[name] = v
	}

	for name, list := range d.Lists {
		flat[name] = list
	}

	return sonic.ConfigStd.Marshal(flat)
}

// UnmarshalJSON 按变体名的合并方式解析扁平对象.
func (d *Document) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := sonic.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("decode metadata document: %w", err)
	}

	doc := NewDocument()

	for name, raw := range flat {
		if KindOf(name) == Repeated {
			var list []Variant
			if err := sonic.Unmarshal(raw, &list); err != nil {
				return fmt.Errorf("decode variant list %q: %w", name, err)
			}

			doc.Lists[name] = list

			continue
		}

		var v Variant
		if err := sonic.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode variant %q: %w", name, err)
		}

		doc.Singles[name] = v
	}

	*d = doc

	return nil
}
