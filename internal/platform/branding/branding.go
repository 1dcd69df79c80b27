// Package branding holds product naming shared by pages and logs.
package branding

// AppName is the product name shown in page titles.
const AppName = "Adventure"
