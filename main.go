package main

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"

	"go-ao3/config"
	"go-ao3/db"
	handlers "go-ao3/handler"
	"go-ao3/ratelimit"
	"go-ao3/repository"
	"go-ao3/scraper"
	"go-ao3/utils"
	"go-ao3/worker"
)

func main() {
	cfg := config.LoadConfig()

	conn, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	limiter := ratelimit.New()
	source := scraper.New(scraper.NewFetcher(), limiter)

	works := repository.NewWorkRepository(conn, source)
	search := repository.NewSearchRepository(conn, works, source)
	bookmarks := repository.NewBookmarkRepository(conn)
	downloads := repository.NewDownloadRepository(conn)
	following := repository.NewFollowingRepository(conn, works, source)

	engine := worker.NewEngine(conn, rdb, works, downloads, following)
	if cfg.S3Enabled() {
		exporter, err := utils.NewWorkExporter(cfg)
		if err != nil {
			log.Printf("S3 export disabled: %v", err)
		} else {
			engine.Exporter = exporter
		}
	}
	engine.Start(context.Background())

	go func() {
		for event := range engine.Events() {
			log.Printf("Engine event: %s work=%s status=%s count=%d", event.Type, event.WorkID, event.Status, event.Count)
		}
	}()

	e := echo.New()

	workHandler := &handlers.WorkHandler{Works: works, Search: search, Bookmarks: bookmarks}
	downloadHandler := &handlers.DownloadHandler{Works: works, Downloads: downloads, Engine: engine}
	bookmarkHandler := &handlers.BookmarkHandler{Bookmarks: bookmarks}
	followingHandler := &handlers.FollowingHandler{Following: following, Engine: engine}

	e.GET("/works/:id", workHandler.GetWork)
	e.GET("/works/:id/chapters", workHandler.GetWorkChapters)
	e.GET("/works/:work_id/chapters/:number", workHandler.GetChapter)
	e.GET("/authors/:author/works", workHandler.GetWorksByAuthor)
	e.GET("/search", workHandler.SearchWorks)
	e.GET("/search/cached", workHandler.SearchCachedWorks)
	e.DELETE("/works/:id", workHandler.DeleteWork)
	e.POST("/cache/clear", workHandler.ClearOldCache)

	e.POST("/works/:id/download", downloadHandler.StartDownload)
	e.POST("/works/:id/download/cancel", downloadHandler.CancelDownload)
	e.GET("/downloads", downloadHandler.ListDownloads)
	e.GET("/downloads/:id", downloadHandler.GetDownload)
	e.DELETE("/downloads/:id", downloadHandler.DeleteDownload)
	e.POST("/downloads/clear-failed", downloadHandler.ClearFailedDownloads)

	e.GET("/bookmarks", bookmarkHandler.ListBookmarks)
	e.GET("/bookmarks/:id", bookmarkHandler.GetBookmark)
	e.POST("/works/:id/bookmark", bookmarkHandler.AddBookmark)
	e.DELETE("/works/:id/bookmark", bookmarkHandler.RemoveBookmark)
	e.PUT("/works/:id/progress", bookmarkHandler.UpdateProgress)

	e.GET("/following", followingHandler.ListFollowing)
	e.POST("/works/:id/follow", followingHandler.FollowWork)
	e.POST("/authors/:id/follow", followingHandler.FollowAuthor)
	e.DELETE("/following/:id", followingHandler.Unfollow)
	e.GET("/following/updates", followingHandler.ListUpdates)
	e.GET("/following/updates/count", followingHandler.GetUpdateCount)
	e.POST("/following/:id/mark-read", followingHandler.MarkUpdateRead)
	e.POST("/following/check-updates", followingHandler.TriggerUpdateCheck)

	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
