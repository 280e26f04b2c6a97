// Package model contains the domain models of the forum watcher.
package model

// TableName is the table holding every observed topic.
const TableName = "forum"
