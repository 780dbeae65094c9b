package controllers

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
)

const sitemapProductLimit = 10000

var staticPages = []struct {
	path     string
	freq     string
	priority float64
}{
	{"", "daily", 1.0},
	{"/products", "daily", 0.9},
	{"/about", "weekly", 0.9},
	{"/contact", "weekly", 0.9},
	{"/signup", "weekly", 0.9},
	{"/login", "weekly", 0.9},
	{"/privacy-policy", "monthly", 0.5},
	{"/terms-conditions", "monthly", 0.5},
	{"/shipping", "monthly", 0.5},
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// SEOController serves sitemap.xml and robots.txt for the public site.
type SEOController struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	baseURL    string
	now        func() time.Time
}

func NewSEOController(products repository.ProductRepository, categories repository.CategoryRepository, baseURL string) *SEOController {
	return &SEOController{
		products:   products,
		categories: categories,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// HandleSitemap lists static pages, active listings and category pages. A
// database failure degrades to the static pages.
func (sc *SEOController) HandleSitemap(c *fiber.Ctx) error {
	today := sc.now().UTC().Format("2006-01-02")
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPages {
		set.URLs = append(set.URLs, sitemapURL{Loc: sc.baseURL + p.path, LastMod: today, ChangeFreq: p.freq, Priority: p.priority})
	}

	products, err := sc.products.ListActiveForSitemap(sitemapProductLimit)
	if err != nil {
		log.Errorf("[SEO] Loading products for sitemap: %v", err)
	}
	for _, p := range products {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        fmt.Sprintf("%s/products/%d", sc.baseURL, p.ID),
			LastMod:    p.UpdatedAt.UTC().Format("2006-01-02"),
			ChangeFreq: "weekly",
			Priority:   0.7,
		})
	}

	categories, err := sc.categories.GetAll()
	if err != nil {
		log.Errorf("[SEO] Loading categories for sitemap: %v", err)
	}
	for _, loc := range categoryPaths(categories) {
		set.URLs = append(set.URLs, sitemapURL{Loc: sc.baseURL + loc.path, LastMod: today, ChangeFreq: "daily", Priority: loc.priority})
	}

	out, err := xml.Marshal(set)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(append([]byte(xml.Header), out...))
}

type categoryPath struct {
	path     string
	priority float64
}

// categoryPaths maps roots to /category/<slug> and children to
// /category/<parent>/<child>. Children of unknown parents are skipped.
func categoryPaths(all []models.Category) []categoryPath {
	slugs := make(map[uint]string, len(all))
	for _, c := range all {
		slugs[c.ID] = c.Slug
	}
	paths := make([]categoryPath, 0, len(all))
	for _, c := range all {
		if c.ParentID == nil {
			paths = append(paths, categoryPath{"/category/" + c.Slug, 0.8})
			continue
		}
		if parent, ok := slugs[*c.ParentID]; ok {
			paths = append(paths, categoryPath{"/category/" + parent + "/" + c.Slug, 0.7})
		}
	}
	return paths
}

func (sc *SEOController) HandleRobots(c *fiber.Ctx) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	for _, p := range []string{"/api/", "/admin/", "/dashboard/", "/my-products/"} {
		b.WriteString("Disallow: " + p + "\n")
	}
	b.WriteString("\nSitemap: " + sc.baseURL + "/sitemap.xml\n")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(b.String())
}
