package handler

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed index.html
var indexHTML string

// IndexTemplate is the landing page. Install it with Engine.SetHTMLTemplate.
var IndexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Index returns a handler for GET / that shows the masked reference
// identifier and a small form driving the API.
func Index(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index", gin.H{"MaskedID": v.MaskedExpectedID()})
	}
}
