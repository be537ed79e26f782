package querysql

import "github.com/roach88/relq/internal/alias"

func aliasOf(n uint64) alias.Alias { return alias.Alias(n) }
