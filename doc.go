// Package detiksync republishes short news videos from 20.detik.com to a set
// of Facebook pages.
//
// Overview
//
// Each invocation of the detiksync binary performs one pass:
//
//   - load the destinations file and the ledger (posted_videos.json)
//   - fetch the newest candidates from the listing page or RSS feed
//   - download each candidate that some destination has not received yet
//   - publish it to the missing destinations, as a Reel when it is short
//   - record every successful delivery and persist the ledger
//
// A failure for one item or one destination is logged and retried on the
// next pass. Configuration errors, a corrupt ledger and an unreachable listing
// abort the pass before the ledger file is touched.
//
// Configuration
//
// Parameters are read from defaults, an optional detiksync.json and the
// environment, in increasing priority. A .env file in the working directory
// is merged into the environment first. Every name may carry the DETIKSYNC_
// prefix:
//
//   - BASE_URL: listing page or feed URL
//   - SOURCE_KIND: html or rss
//   - DATA_FILE: ledger path
//   - FB_PAGES_FILE: destinations file, a JSON list of page_id, page_name
//     and access_token objects
//   - MAX_RETRIES, RETRY_DELAY: retry policy for every network call
//   - UPLOAD_DELAY: spacing between two publishes
//   - RUN_TIMEOUT, SHUTDOWN_MARGIN: wall-clock budget of a pass
//   - REEL_MAX_DURATION: clips up to this length are converted to Reels
//
// Error Handling
//
// The error types of the sub-packages are re-exported here:
//
//	var fe *detiksync.FetchError
//	if errors.As(err, &fe) {
//		fmt.Printf("listing %s unreachable: %v\n", fe.URL, fe.Err)
//	}
//
//	if errors.Is(err, detiksync.ErrStorageCorrupt) {
//		fmt.Println("ledger needs manual repair")
//	}
//
// Dependencies
//
// HLS media needs yt-dlp and Reel conversion needs ffmpeg, both on PATH or
// configured through YTDLP_PATH and FFMPEG_PATH.
package detiksync
