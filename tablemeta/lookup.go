package tablemeta

import "context"

// NameEntry is the (database, name) pair returned by GetName and
// ListNames.
type NameEntry struct {
	Database string
	Name     string
}

// Find returns the table id uniquely identified by (database, name), and
// whether exactly one such entry currently exists in the mirror (§4.6).
// Runs on the client's home thread, hopping there first if necessary.
func (c *Client) Find(ctx context.Context, database, name string) (TableID, bool, error) {
	var id TableID
	var unique bool
	err := c.loop.Submit(ctx, func(context.Context) error {
		c.m.lookups.Inc()
		count := 0
		c.dir.Reduced().ReadAll(func(k TableID, v ReducedTable) {
			if v.Database == database && v.Name == name {
				count++
				id = k
			}
		})
		unique = count == 1
		return nil
	})
	if err != nil {
		return TableID{}, false, err
	}
	return id, unique, nil
}

// GetName returns the (database, name) currently advertised for id, or
// ok==false if the mirror has no entry for it (§4.6).
func (c *Client) GetName(ctx context.Context, id TableID) (database, name string, ok bool, err error) {
	err = c.loop.Submit(ctx, func(context.Context) error {
		c.m.lookups.Inc()
		c.dir.Reduced().ReadKey(id, func(v ReducedTable, present bool) {
			ok = present
			if present {
				database, name = v.Database, v.Name
			}
		})
		return nil
	})
	return database, name, ok, err
}

// ListNames returns a full snapshot of every table currently in the
// mirror (§4.6).
func (c *Client) ListNames(ctx context.Context) (map[TableID]NameEntry, error) {
	out := make(map[TableID]NameEntry)
	err := c.loop.Submit(ctx, func(context.Context) error {
		c.m.lookups.Inc()
		c.dir.Reduced().ReadAll(func(k TableID, v ReducedTable) {
			out[k] = NameEntry{Database: v.Database, Name: v.Name}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
