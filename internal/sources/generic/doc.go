// Package generic is a heuristic parser for HTML reading sites without a
// dedicated parser. Chapter links are recognised by URL and label shape, and
// page images are collected from the DOM with fallbacks for lazy loading,
// embedded SSR state and, optionally, endpoints referenced from scripts.
package generic
