package generator

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/invopop/jsonschema"

	"github.com/ubuygold/contentmill/internal/model"
)

// Delimiter separates the items of a batch in model output.
const Delimiter = "=============="

type titlesOutput struct {
	Blog string `json:"blog" jsonschema_description:"Blog titles, one per line"`
	Ads  string `json:"ads" jsonschema_description:"Advertising titles, one per line"`
}

type articleOutput struct {
	Chapters  []model.Chapter `json:"chapters" jsonschema_description:"Article chapters in reading order"`
	Reference string          `json:"reference" jsonschema_description:"Sources the article relies on"`
	FAQ       string          `json:"faq" jsonschema_description:"Ten questions and answers as an HTML table with class my_table"`
	Slug      string          `json:"slug" jsonschema_description:"The title translated to English"`
}

type infoOutput struct {
	Info string `json:"info" jsonschema_description:"Promotional texts separated by the item delimiter"`
}

type bulletOutput struct {
	Bullet string `json:"bullet" jsonschema_description:"Service lists separated by the item delimiter"`
}

// schemaFor renders the JSON schema of T for embedding in a prompt.
func schemaFor[T any]() string {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	out, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
	if err != nil {
		panic(err)
	}
	return string(out)
}

var (
	titlesSchema  = schemaFor[titlesOutput]()
	articleSchema = schemaFor[articleOutput]()
	infoSchema    = schemaFor[infoOutput]()
	bulletSchema  = schemaFor[bulletOutput]()
)

// promptData is the template context of every prompt.
type promptData struct {
	P          *model.Project
	Count      int
	BlogCount  int
	AdsCount   int
	Keyword    string
	Title      string
	WordCount  int
	Chapters   int
	PerChapter int
	Delimiter  string
	Schema     string
}

const keywordsSystem = `You are a senior SEO specialist focused on keyword research and content marketing.
Output the keywords only, nothing else.`

var keywordsPrompt = template.Must(template.New("keywords").Parse(`Business information:
Brand: {{.P.CompanyName}}
Main products or services: {{.P.ServicesProducts}}
Business field: {{.P.BusinessField}}

Based on the information above, suggest exactly {{.Count}} targeted SEO keywords that:
- mix short, mid-length and long-tail phrases;
- relate to the business field and to what customers look for;
- have a realistic chance to rank;
- carry a clear search intent (informational, transactional or navigational).

Put every keyword on its own line.
Write in {{.P.Lang}}.

Separate each item with {{.Delimiter}}`))

const titlesSystem = "You are a helpful assistant. Only output the titles, nothing extra."

var titlesPrompt = template.Must(template.New("titles").Parse(`You are an SEO content strategist who writes high-converting article titles.

Business information:
Brand: {{.P.CompanyName}}
Main products or services: {{.P.ServicesProducts}}
Business field: {{.P.BusinessField}}

Produce two groups of SEO optimized, engaging titles:
1. {{.BlogCount}} blog titles
2. {{.AdsCount}} advertising titles

Rules:
- The keyword appears exactly once in each title, near the beginning or the middle.
- Each title is 55 to 65 characters long.
- Follow E-E-A-T principles.
- Vary the formats: guides, listicles, comparisons, tips.

Respond with a JSON object matching this schema:
{{.Schema}}

Write in {{.P.Lang}}.
Keyword: {{.Keyword}}`))

const articleSystem = "You are a senior SEO content writer. Output valid JSON only."

var articlePrompt = template.Must(template.New("article").Parse(`Write a fully SEO optimized article that reads as written by a person.

Title: {{.Title}}
Keyword: {{.Keyword}}

Business information:
Brand: {{.P.CompanyName}}
Main products or services: {{.P.ServicesProducts}}
Business field: {{.P.BusinessField}}
About: {{.P.AboutCompany}}

Content rules:
- Follow E-E-A-T principles.
- Total length: {{.WordCount}} words.
- Use the keyword naturally with a density below 2%, and synonyms where needed.
- Use <br> tags for line breaks.

Structure:
- Write {{.Chapters}} chapters in the "chapters" array, each with "title" and "content".
- Each chapter is about {{.PerChapter}} words.
- Start every chapter title with a relevant emoji and never number the chapters.
- Do not use colons in titles.
- Add 2 HTML tables with class "my_table" in random chapters.
- Quote every HTML attribute with double quotes.
- Put 10 FAQ items as an HTML table with class "my_table" in "faq".
- Put the title translated to English in "slug".

Respond with a JSON object matching this schema:
{{.Schema}}

Write in {{.P.Lang}}.`))

var adsPrompt = template.Must(template.New("ads").Parse(`Write a persuasive, SEO optimized promotional article of at most 2000 characters.

Title: {{.Title}}
Keyword: {{.Keyword}}

Company: {{.P.CompanyName}}
Business field: {{.P.BusinessField}}
Services: {{.P.ServicesProducts}}
About: {{.P.AboutCompany}}

Structure:
1. Hook: one or two emotional sentences.
2. Introduction of 80 to 100 words about what the company offers.
3. The pain points of the reader.
4. The services as the solution.
5. A call to action with urgency. Contact: {{.P.Address}}, {{.P.MobilePhone}}
6. Why choose this company.

Write in {{.P.Lang}}. Output only the article text.`))

const supplementarySystem = "You are a helpful assistant. Don't use quotes in content."

var beinPrompt = template.Must(template.New("bein").Parse(`For the company {{.P.CompanyName}} that provides {{.P.ServicesProducts}}, write {{.Count}} unique advertising texts.

Each text must:
- open with a question or a hook;
- present the solution or benefit;
- list 2 or 3 advantages marked with ✅;
- end with a short call to action;
- be 350 to 500 characters long;
- mention the company name.

Write in {{.P.Lang}}.
Separate each item with {{.Delimiter}}`))

var infoPrompt = template.Must(template.New("info").Parse(`For the company {{.P.CompanyName}} that provides {{.P.ServicesProducts}}, write {{.Count}} unique promotional texts.

Each text must:
- open with a hook;
- describe one specific service or benefit;
- add one feature marked with ✅.

End each text with this contact block:
✉️ <a href="mailto:{{.P.Email}}">{{.P.Email}}</a><br>
📱 <a href="tel:{{.P.MobilePhone}}">{{.P.MobilePhone}}</a><br>
📞 <a href="tel:{{.P.Phone}}">{{.P.Phone}}</a><br>

Write in {{.P.Lang}}.
Separate each item with {{.Delimiter}}

Respond with a JSON object matching this schema:
{{.Schema}}`))

var bulletPrompt = template.Must(template.New("bullet").Parse(`For the company {{.P.CompanyName}} whose services include {{.P.ServicesProducts}}, write {{.Count}} different, realistic services relevant to the industry.

Use this format for each entry:
{{.P.Bullet1}}
[Service 1]
[Service 2]
[Service 3]
[Service 4]
[Service 5]
{{.P.Bullet2}}
{{.P.Bullet3}}

List exactly five new services per entry, all related to {{.P.BusinessField}}.

Write in {{.P.Lang}}.
Separate each item with {{.Delimiter}}

Respond with a JSON object matching this schema:
{{.Schema}}`))

func render(tmpl *template.Template, data promptData) (string, error) {
	data.Delimiter = Delimiter
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
