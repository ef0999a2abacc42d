package tool

// Version is overwritten at build time with -ldflags "-X github.com/moyoez/splitsend-go/tool.Version=..."
var Version = "dev"
