package api

import (
	"embed"
	"html/template"
)

//go:embed static/*
var apiStaticFS embed.FS

// dashboardTemplate is parsed once at init; a parse failure is a build defect.
var dashboardTemplate = template.Must(template.ParseFS(apiStaticFS, "static/dashboard.html"))
