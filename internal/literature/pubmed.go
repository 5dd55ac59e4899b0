package literature

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/model"
)

const pubMedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMed searches PubMed through the NCBI E-utilities: esearch for IDs,
// then efetch for the abstracts.
type PubMed struct {
	baseURL string
	apiKey  string
	fetch   *fetcher
}

// NewPubMed creates a PubMed client
func NewPubMed(opts Options) *PubMed {
	base := opts.BaseURL
	if base == "" {
		base = pubMedBaseURL
	}
	apiKey := opts.APIKey
	// E-utilities takes the key as a query parameter
	opts.APIKey = ""
	return &PubMed{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		fetch:   newFetcher(opts, ""),
	}
}

// Name returns the service name
func (p *PubMed) Name() string {
	return "pubmed"
}

// Search returns papers with abstracts for query
func (p *PubMed) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	ids, err := p.searchIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Paper{}, nil
	}
	return p.fetchAbstracts(ctx, ids)
}

func (p *PubMed) searchIDs(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retmode", "json")
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	body, err := p.fetch.get(ctx, p.baseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &SearchError{Reason: model.ReasonParse, Err: fmt.Errorf("invalid esearch JSON")}
	}
	idList := gjson.GetBytes(body, "esearchresult.idlist")
	if !idList.Exists() {
		if msg := gjson.GetBytes(body, "esearchresult.ERROR").String(); msg != "" {
			return nil, &SearchError{Reason: model.ReasonStatus, Err: fmt.Errorf("esearch: %s", msg)}
		}
		return nil, &SearchError{Reason: model.ReasonParse, Err: fmt.Errorf("esearch response has no idlist")}
	}

	var ids []string
	for _, id := range idList.Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID  string         `xml:"MedlineCitation>PMID"`
	Title abstractText   `xml:"MedlineCitation>Article>ArticleTitle"`
	Year  string         `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate>Year"`
	Parts []abstractText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
}

// abstractText keeps inline markup such as <i> for StripMarkup
type abstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

func (p *PubMed) fetchAbstracts(ctx context.Context, ids []string) ([]Paper, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("rettype", "abstract")
	params.Set("retmode", "xml")
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	body, err := p.fetch.get(ctx, p.baseURL+"/efetch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	return parsePubMedXML(body)
}

// parsePubMedXML keeps articles with a non-empty abstract. Structured
// abstracts are joined section by section with their labels.
func parsePubMedXML(body []byte) ([]Paper, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, &SearchError{Reason: model.ReasonParse, Err: fmt.Errorf("decode efetch XML: %w", err)}
	}

	papers := []Paper{}
	for _, a := range set.Articles {
		var sections []string
		for _, part := range a.Parts {
			text := extract.StripMarkup(part.Inner)
			if text == "" {
				continue
			}
			if part.Label != "" {
				text = strings.ToUpper(part.Label[:1]) + strings.ToLower(part.Label[1:]) + ": " + text
			}
			sections = append(sections, text)
		}
		if len(sections) == 0 {
			continue
		}

		year, _ := strconv.Atoi(strings.TrimSpace(a.Year))
		papers = append(papers, Paper{
			ID:       strings.TrimSpace(a.PMID),
			Title:    extract.StripMarkup(a.Title.Inner),
			Abstract: strings.Join(sections, " "),
			Year:     year,
		})
	}
	return papers, nil
}
