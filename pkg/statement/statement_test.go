package statement

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestParseCreateTable(t *testing.T) {
	ct, err := ParseCreateTable("CREATE TABLE `products` (\n" +
		"  `id` int unsigned NOT NULL AUTO_INCREMENT,\n" +
		"  `trainer_id` int DEFAULT NULL,\n" +
		"  `name` varchar(255) NOT NULL,\n" +
		"  `price` decimal(10,2) DEFAULT NULL,\n" +
		"  `created_at` timestamp NULL DEFAULT NULL,\n" +
		"  PRIMARY KEY (`id`)\n" +
		") ENGINE=InnoDB AUTO_INCREMENT=42 DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")
	require.NoError(t, err)
	assert.Equal(t, "products", ct.TableName)
	assert.Equal(t, []string{"id", "trainer_id", "name", "price", "created_at"}, ct.Columns)
}

func TestParseCreateTableQualifiedName(t *testing.T) {
	ct, err := ParseCreateTable("CREATE TABLE shop.orders (id BIGINT PRIMARY KEY, email TEXT)")
	require.NoError(t, err)
	assert.Equal(t, "orders", ct.TableName)
	assert.Equal(t, []string{"id", "email"}, ct.Columns)
}

func TestParseCreateTableErrors(t *testing.T) {
	_, err := ParseCreateTable("INSERT INTO t1 (a) VALUES (1)")
	assert.ErrorIs(t, err, ErrNotCreateTable)

	_, err = ParseCreateTable("CREATE TABLE t1 (a int); CREATE TABLE t2 (b int)")
	assert.ErrorContains(t, err, "expected exactly one statement")

	_, err = ParseCreateTable("CREATE TABLE (")
	assert.ErrorContains(t, err, "failed to parse SQL")
}
