package source

// Trimmed copies of the listing and detail markup.

const sampleListing = `<!DOCTYPE html>
<html><body>
<div class="list-content">
  <article class="list-content__item">
    <a class="block-link" href="/detikupdate/d-100/video-banjir-jakarta">Banjir</a>
  </article>
  <article class="list-content__item">
    <a class="block-link" href="https://20.detik.com/detikupdate/d-101/video-gempa?utm_source=home">Gempa</a>
  </article>
  <article class="list-content__item">
    <a class="block-link" href="/detikupdate/d-102/berita-tanpa-media">Artikel</a>
  </article>
  <article class="list-content__item">
    <a class="block-link" href="/detikupdate/d-100/video-banjir-jakarta/?ref=dup">Banjir lagi</a>
  </article>
  <article class="list-content__item">
    <span>no link</span>
  </article>
  <article class="other">
    <a class="block-link" href="/detikupdate/d-103/video-sidebar">Sidebar</a>
  </article>
</div>
</body></html>`

const sampleDetailJSONLD = `<!DOCTYPE html>
<html><head>
<title>Banjir Jakarta - 20detik</title>
<meta name="keywords" content="banjir, jakarta utara, , cuaca ekstrem">
<script type="application/ld+json">
{"@context": "https://schema.org", "@type": "VideoObject",
 "name": "Banjir Jakarta",
 "contentUrl": "//cdn.detik.net.id/video/banjir.mp4",
 "uploadDate": "2026-10-14T07:30:00+07:00"}
</script>
</head><body>
<h1 class="detail__title">
  Banjir Rendam   Jakarta Utara
</h1>
<div class="media__icon--top-right">45 detik</div>
<div class="detail__body-text">
  <p>Hujan deras sejak pagi.</p>
</div>
</body></html>`

const sampleDetailPattern = `<!DOCTYPE html>
<html><head>
<title>Gempa Terkini</title>
</head><body>
<div class="media__icon--top-right">2:05</div>
<script>
var player = { videoUrl: "https://cdn.detik.net.id/hls/gempa/index.m3u8?token=abc", autoplay: true };
</script>
</body></html>`

const sampleDetailNoMedia = `<!DOCTYPE html>
<html><head><title>Artikel</title></head>
<body><h1 class="detail__title">Artikel biasa</h1></body></html>`

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>detikupdate</title>
  <link>https://20.detik.com/detikupdate</link>
  <item>
    <title>Banjir dari feed</title>
    <link>https://20.detik.com/detikupdate/d-100/video-banjir-jakarta</link>
    <pubDate>Wed, 14 Oct 2026 01:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Gempa dari feed</title>
    <link>https://20.detik.com/detikupdate/d-101/video-gempa</link>
    <pubDate>Wed, 14 Oct 2026 02:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Duplikat</title>
    <link>https://20.detik.com/detikupdate/d-100/video-banjir-jakarta?x=1</link>
  </item>
</channel>
</rss>`
