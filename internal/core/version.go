package core

// Version is the ojs-cron release reported by /health and metrics.
const Version = "0.1.0"
