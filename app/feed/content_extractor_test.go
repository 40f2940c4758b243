package feed

import (
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Flamengo vence o Palmeiras no Maracanã</title>
	<meta property="og:image" content="https://s.glbimg.com/photo.jpg">
	<meta name="author" content="João Silva">
</head>
<body>
	<header><nav>Menu</nav></header>
	<main>
		<article>
			<h1>Flamengo vence o Palmeiras no Maracanã</h1>
			<p>O Flamengo venceu o Palmeiras por 2 a 1 neste sábado, no Maracanã, em partida válida pela rodada do Campeonato Brasileiro.</p>
			<p>Os gols foram marcados no segundo tempo, depois de uma primeira etapa equilibrada e com poucas chances claras para as duas equipes.</p>
			<p>Com o resultado, o time carioca assume a liderança provisória da competição e volta a campo no meio da semana pela Libertadores.</p>
		</article>
	</main>
	<footer><p>Copyright 2024</p></footer>
</body>
</html>`

func TestContentExtractor_ValidHTML(t *testing.T) {
	extract, err := NewContentExtractor().Run([]byte(articleHTML), "https://ge.globo.com/futebol/1.ghtml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if extract.Title == "" {
		t.Error("Expected non-empty title")
	}
	if !strings.Contains(extract.Text, "Palmeiras por 2 a 1") {
		t.Errorf("Expected article text to be extracted, got: %s", extract.Text)
	}
	if strings.Contains(extract.Text, "Copyright") {
		t.Error("Expected footer to be removed")
	}
}

func TestContentExtractor_EmptyHTML(t *testing.T) {
	if _, err := NewContentExtractor().Run(nil, ""); err == nil {
		t.Error("Expected error for empty HTML")
	}
}

func TestContentExtractor_InvalidPageURL(t *testing.T) {
	if _, err := NewContentExtractor().Run([]byte(articleHTML), "://bad"); err == nil {
		t.Error("Expected error for invalid page URL")
	}
}

func TestExtractEnrichKeepsExistingFields(t *testing.T) {
	extract := &Extract{Title: "From page", Excerpt: "Page excerpt", ImageURL: "https://x/img.jpg", Byline: "Page author"}
	item := RawItem{Title: "From listing", Link: "https://x/a"}

	extract.Enrich(&item)

	if item.Title != "From listing" {
		t.Errorf("Expected listing title to be kept, got '%s'", item.Title)
	}
	if item.Summary != "Page excerpt" || item.Image != "https://x/img.jpg" || item.Author != "Page author" {
		t.Errorf("Expected blank fields to be filled, got %+v", item)
	}
}
