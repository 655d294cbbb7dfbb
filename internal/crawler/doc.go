// Package crawler holds the records, contracts and failure types shared by the
// crawl, graph and rank stages.
package crawler
