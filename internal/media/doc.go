// Package media stores plant photos uploaded from the dashboard.
//
// Uploads are written under a single directory with generated names, and
// each one is reduced to a dominant colour the dashboard uses as the plant's
// accent. Files no plant references are swept periodically.
package media
