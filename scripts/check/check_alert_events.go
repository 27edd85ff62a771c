package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// 检查 alert_events 表的一致性：
// 1. dedup_key 是否存在重复（唯一约束失效）
// 2. 近 24 小时各级别的告警量
// 3. 分发结果缺失（delivery 为 NULL）的记录数
func main() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "anxiease"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// 1. dedup_key 重复检查
	fmt.Println("1. Duplicate dedup_key check")
	rows, err := db.Query(`
		SELECT dedup_key, COUNT(*) AS cnt
		FROM alert_events
		GROUP BY dedup_key
		HAVING COUNT(*) > 1
		ORDER BY cnt DESC
		LIMIT 20
	`)
	if err != nil {
		log.Fatalf("Failed to query duplicate dedup keys: %v", err)
	}
	defer rows.Close()

	duplicates := 0
	for rows.Next() {
		var dedupKey string
		var cnt int
		if err := rows.Scan(&dedupKey, &cnt); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		fmt.Printf("  DUPLICATE: dedup_key=%s count=%d\n", dedupKey, cnt)
		duplicates++
	}
	if duplicates == 0 {
		fmt.Println("  OK: no duplicate dedup keys")
	}

	// 2. 近 24 小时各级别告警量
	fmt.Println("2. Alert volume by severity (last 24h)")
	rows2, err := db.Query(`
		SELECT severity, COUNT(*) AS cnt
		FROM alert_events
		WHERE triggered_at > NOW() - INTERVAL '24 hours'
		GROUP BY severity
		ORDER BY cnt DESC
	`)
	if err != nil {
		log.Fatalf("Failed to query alert volume: %v", err)
	}
	defer rows2.Close()

	for rows2.Next() {
		var severity string
		var cnt int
		if err := rows2.Scan(&severity, &cnt); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		fmt.Printf("  %-10s %d\n", severity, cnt)
	}

	// 3. 分发结果缺失
	fmt.Println("3. Alerts without delivery result")
	var missing int
	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM alert_events
		WHERE delivery IS NULL
		  AND created_at < NOW() - INTERVAL '5 minutes'
	`).Scan(&missing)
	if err != nil {
		log.Fatalf("Failed to count missing delivery results: %v", err)
	}
	fmt.Printf("  %d alert(s) older than 5 minutes without delivery writeback\n", missing)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultValue
}
