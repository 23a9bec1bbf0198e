package publisher

import (
	"math/rand"
	"strings"

	"github.com/ubuygold/contentmill/internal/model"
)

// MaxChapters is the number of chapters rendered into a post.
const MaxChapters = 10

// maxColors is the number of palette colours sampled per post.
const maxColors = 10

var headingPattern = []string{"h2", "h3", "h2", "h3", "h2", "h4", "h3", "h2", "h3", "h3"}

// beinSlots maps a chapter index to the bein paragraph injected after it.
var beinSlots = map[int]int{1: 0, 4: 1, 8: 2}

// Supplement holds the pool items sampled for one post. Empty values are omitted.
type Supplement struct {
	Beins  []string
	Bullet string
	Info   string
}

// PickColors returns up to 10 colours of the palette in random order.
func PickColors(rng *rand.Rand, palette []string) []string {
	colors := make([]string, len(palette))
	copy(colors, palette)
	rng.Shuffle(len(colors), func(i, j int) {
		colors[i], colors[j] = colors[j], colors[i]
	})
	if len(colors) > maxColors {
		colors = colors[:maxColors]
	}
	return colors
}

func headingTag(i int) string {
	if i < len(headingPattern) {
		return headingPattern[i]
	}
	return "h3"
}

// Assemble renders the HTML body of a post. It is deterministic for a given
// article, supplement and colour list.
func Assemble(article *model.Article, supp Supplement, colors []string) string {
	var parts []string
	for i, chapter := range article.Chapters {
		if i >= MaxChapters {
			break
		}
		tag := headingTag(i)
		if len(colors) > 0 {
			parts = append(parts, "<"+tag+` style="color:`+colors[i%len(colors)]+`">`+chapter.Title+"</"+tag+">")
		} else {
			parts = append(parts, "<"+tag+">"+chapter.Title+"</"+tag+">")
		}
		parts = append(parts, chapter.Content)

		if slot, ok := beinSlots[i]; ok && slot < len(supp.Beins) {
			parts = append(parts, "<blockquote>"+supp.Beins[slot]+"</blockquote>")
		}
	}

	if article.FAQ != "" {
		parts = append(parts, article.FAQ)
	}
	if supp.Bullet != "" {
		parts = append(parts, "<strong>"+supp.Bullet+"</strong>")
	}
	if supp.Info != "" {
		parts = append(parts, supp.Info)
	}
	return strings.Join(parts, "\n")
}
