package cache

import (
	"sort"
	"strconv"
	"strings"

	"quotehub.com/internal/market/model"
)

const keyPrefix = "market"

// Key 缓存 key，格式固定，多个节点共用同一份缓存必须逐字节一致：
// market:{assetClass}:{dataType}:{timeframe}:{symbols}:{query}
// query 只包含有值的参数，key=value，按 key 排序后用 & 连接。空段保留。
func Key(q model.QueryParams) string {
	q = q.Normalize()

	var b strings.Builder
	b.Grow(64)
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(string(q.AssetClass))
	b.WriteByte(':')
	b.WriteString(string(q.DataType))
	b.WriteByte(':')
	b.WriteString(string(q.Timeframe))
	b.WriteByte(':')
	b.WriteString(strings.Join(q.Symbols, ","))
	b.WriteByte(':')
	b.WriteString(queryString(q))
	return b.String()
}

func queryString(q model.QueryParams) string {
	kv := make([][2]string, 0, 5)
	if q.Limit > 0 {
		kv = append(kv, [2]string{"limit", strconv.Itoa(q.Limit)})
	}
	if q.OrderBy != "" {
		kv = append(kv, [2]string{"orderBy", q.OrderBy})
	}
	if q.Start != "" {
		kv = append(kv, [2]string{"start", q.Start})
	}
	if q.End != "" {
		kv = append(kv, [2]string{"end", q.End})
	}
	if q.Provider != "" {
		kv = append(kv, [2]string{"provider", q.Provider})
	}
	sort.Slice(kv, func(i, j int) bool { return kv[i][0] < kv[j][0] })

	parts := make([]string, len(kv))
	for i, p := range kv {
		parts[i] = p[0] + "=" + p[1]
	}
	return strings.Join(parts, "&")
}

// LogoKey 每个 assetClass 一份 symbol -> logo 映射
func LogoKey(ac model.AssetClass) string {
	return keyPrefix + ":" + string(ac) + ":logos"
}

// Topic 快照通知 / 广播频道名：market:{assetClass}:{dataType}
func Topic(ac model.AssetClass, dt model.DataType) string {
	return keyPrefix + ":" + string(ac) + ":" + string(dt)
}
