package iframe

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"openkeytool/pkg/model"

	"github.com/PuerkitoBio/goquery"
)

// HTMLSource 从保存的 HTML 文档中枚举 iframe
type HTMLSource struct {
	doc  *goquery.Document
	base *url.URL
	raw  string
}

// NewHTMLSource 解析文档，base 用于解析相对 src，可为空
func NewHTMLSource(r io.Reader, base string) (*HTMLSource, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	s := &HTMLSource{doc: doc, raw: base}
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("无效的base地址 %q: %w", base, err)
		}
		s.base = u
	}
	return s, nil
}

func (s *HTMLSource) ActiveTab(context.Context) (model.TargetInfo, error) {
	return model.TargetInfo{
		ID:        "html",
		Type:      "page",
		URL:       s.raw,
		Title:     strings.TrimSpace(s.doc.Find("title").First().Text()),
		IsCurrent: true,
	}, nil
}

func (s *HTMLSource) ListIframes(context.Context) ([]model.RawIframe, error) {
	var out []model.RawIframe
	s.doc.Find("iframe").Each(func(i int, sel *goquery.Selection) {
		src := s.resolve(strings.TrimSpace(sel.AttrOr("src", "")))
		out = append(out, model.RawIframe{Index: i, Src: src, HashContent: HashOf(src)})
	})
	return out, nil
}

func (s *HTMLSource) resolve(src string) string {
	if src == "" || s.base == nil {
		return src
	}
	u, err := s.base.Parse(src)
	if err != nil {
		return src
	}
	return u.String()
}

// HashOf 返回带前导 # 的 hash 内容；无 hash 或解析失败时为空
func HashOf(src string) string {
	if !strings.Contains(src, "#") {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" {
		return ""
	}
	frag := u.EscapedFragment()
	if frag == "" {
		return ""
	}
	return "#" + frag
}
